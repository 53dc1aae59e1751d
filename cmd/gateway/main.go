// Command gateway runs the AU915 dual-radio packet-forwarder core: it
// wires the durable config, the two SX127x radios, the channel manager,
// the Semtech UDP protocol engine and the diagnostics server together and
// runs them until interrupted. Grounded on the signal-handling and
// context-cancellation sequencing in the teacher's cmd/gateway-bridge/main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/au915gw/gateway/internal/band/au915"
	"github.com/au915gw/gateway/internal/channel"
	"github.com/au915gw/gateway/internal/clock"
	"github.com/au915gw/gateway/internal/config"
	"github.com/au915gw/gateway/internal/diag"
	"github.com/au915gw/gateway/internal/forwarder"
	"github.com/au915gw/gateway/internal/gwcore"
	"github.com/au915gw/gateway/internal/gwtypes"
	"github.com/au915gw/gateway/internal/link"
	"github.com/au915gw/gateway/internal/radio"
)

func main() {
	var (
		configPath string
		rxSPI      string
		txSPI      string
		rxReset    string
		rxDIO0     string
		txReset    string
		txDIO0     string
		diagAddr   string
	)
	flag.StringVar(&configPath, "config", "config/gateway.yml", "path to the durable config file")
	flag.StringVar(&rxSPI, "rx-spi", "", "periph spireg bus name for the RX radio")
	flag.StringVar(&txSPI, "tx-spi", "", "periph spireg bus name for the TX radio")
	flag.StringVar(&rxReset, "rx-reset", "", "periph gpio pin name for the RX radio's reset line")
	flag.StringVar(&rxDIO0, "rx-dio0", "", "periph gpio pin name for the RX radio's DIO0 line")
	flag.StringVar(&txReset, "tx-reset", "", "periph gpio pin name for the TX radio's reset line")
	flag.StringVar(&txDIO0, "tx-dio0", "", "periph gpio pin name for the TX radio's DIO0 line")
	flag.StringVar(&diagAddr, "diag-addr", "127.0.0.1:8080", "listen address for the read-only status/metrics server")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	store := config.NewYAMLStore(configPath)
	cfg, err := store.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	eui, err := resolveEUI(cfg.Gateway.EUIHex)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve gateway EUI")
	}
	log.Info().Str("eui", gwcore.EUIString(eui)).Msg("gateway starting")

	if _, err := host.Init(); err != nil {
		log.Fatal().Err(err).Msg("periph host init failed")
	}

	rxDevice, err := newRadioDevice("rx", rxSPI, rxReset, rxDIO0)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open rx radio bus")
	}
	txDevice, err := newRadioDevice("tx", txSPI, txReset, txDIO0)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open tx radio bus")
	}

	rxCfg := radioConfigFromLoRaConfig(cfg.LoRa, au915.UplinkChannelHz(firstEnabledChannel(cfg.LoRa.Channels)))
	if err := rxDevice.Init(rxCfg); err != nil {
		log.Fatal().Err(err).Msg("rx radio init failed")
	}
	txCfg := rxCfg
	txCfg.TxPowerDBm = cfg.LoRa.TxPowerDBm
	if err := txDevice.Init(txCfg); err != nil {
		log.Fatal().Err(err).Msg("tx radio init failed")
	}

	mclock := clock.New()

	stats := gwcore.NewStats()
	rxWorker := gwcore.NewRxWorker(stats, log.Logger.With().Str("component", "rxworker").Logger(),
		gwcore.WithForwardBadCRC(cfg.Gateway.ForwardBadCRC))
	chanMgr := channel.New(rxDevice, txDevice, mclock, rxWorker, stats,
		channel.WithLogger(log.Logger.With().Str("component", "channel").Logger()))

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open forwarder udp socket")
	}
	defer conn.Close()
	serverAddr, err := net.ResolveUDPAddr("udp", cfg.Server.Addr())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve network server address")
	}

	linkMgr := link.NewAlwaysUp(link.IPInfo{})

	engine := forwarder.New(conn, serverAddr, eui, mclock, gwcore.NewScheduler(chanMgr), stats, stats, linkMgr,
		forwarder.WithLogger(log.Logger.With().Str("component", "forwarder").Logger()),
		forwarder.WithKeepaliveInterval(time.Duration(cfg.Server.KeepaliveMs)*time.Millisecond),
		forwarder.WithStatInterval(time.Duration(cfg.Server.StatIntervalMs)*time.Millisecond),
	)
	rxWorker.SetSink(engine)

	core := gwcore.New(gwcore.Deps{
		EUI:        eui,
		RxWorker:   rxWorker,
		ChannelMgr: chanMgr,
		Engine:     engine,
		Log:        log.Logger.With().Str("component", "core").Logger(),
	}, stats)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go rxDevice.ServiceInterrupts(ctx, mclock)
	go txDevice.ServiceInterrupts(ctx, mclock)

	if cfg.LoRa.HopIntervalMs > 0 {
		chanMgr.EnableHopping(enabledChannelFrequencies(cfg.LoRa), time.Duration(cfg.LoRa.HopIntervalMs)*time.Millisecond)
	}

	if err := core.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start gateway core")
	}

	diagSrv := diag.New(diagAddr, core, log.Logger.With().Str("component", "diag").Logger())
	go func() {
		if err := diagSrv.Run(ctx); err != nil {
			log.Error().Err(err).Msg("diag server stopped")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("received signal, shutting down")

	cancel()
	core.Stop()
	log.Info().Msg("gateway stopped")
}

// newRadioDevice opens an SPI bus and optional reset/DIO0 GPIO pins and
// wraps them as an *radio.Device. Pin/bus name flags left empty produce a
// device with no reset line or no interrupt line, per radio.New's
// documented fallbacks.
func newRadioDevice(name, spiName, resetPin, dio0Pin string) (*radio.Device, error) {
	port, err := spireg.Open(spiName)
	if err != nil {
		return nil, fmt.Errorf("open spi bus for %s radio: %w", name, err)
	}
	conn, err := port.Connect(10*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("connect spi for %s radio: %w", name, err)
	}

	opts := []radio.Option{
		radio.WithLogger(log.Logger.With().Str("component", "radio").Str("rf_chain", name).Logger()),
	}

	var resetOut interface {
		Out(l bool) error
	}
	if resetPin != "" {
		pin := gpioreg.ByName(resetPin)
		if pin == nil {
			return nil, fmt.Errorf("%s radio: unknown reset pin %q", name, resetPin)
		}
		resetOut = radio.WrapOutPin(pin)
	}
	var dio0In interface {
		In(pullDown, risingEdge bool) error
		WaitForEdge(timeout time.Duration) bool
		Read() bool
	}
	if dio0Pin != "" {
		pin := gpioreg.ByName(dio0Pin)
		if pin == nil {
			return nil, fmt.Errorf("%s radio: unknown dio0 pin %q", name, dio0Pin)
		}
		dio0In = radio.WrapInPin(pin)
	}

	return radio.New(name, conn, resetOut, dio0In, opts...), nil
}

// radioConfigFromLoRaConfig builds the RadioConfig applied at Init from
// the durable LoRaConfig plus a resolved carrier frequency.
func radioConfigFromLoRaConfig(cfg config.LoRaConfig, freqHz uint32) gwtypes.RadioConfig {
	rc := gwtypes.DefaultRadioConfig()
	rc.FrequencyHz = freqHz
	rc.SpreadingFactor = cfg.DefaultRxSF
	rc.Bandwidth = gwtypes.Bandwidth(cfg.RxBandwidth)
	rc.SyncWord = cfg.SyncWord
	rc.TxPowerDBm = cfg.TxPowerDBm
	return rc
}

// firstEnabledChannel returns the uplink channel index of the first
// enabled channel in chans, or 0 if none are enabled (an empty or
// all-disabled channel list is a misconfiguration the radio still has to
// boot with something, per spec.md §4.1's "always applies a config at
// Init").
func firstEnabledChannel(chans []config.ChannelConfig) int {
	for _, ch := range chans {
		if ch.Enabled {
			return ch.Index
		}
	}
	return 0
}

// enabledChannelFrequencies returns the carrier frequencies of every
// enabled channel in cfg, in index order, for EnableHopping's plan.
func enabledChannelFrequencies(cfg config.LoRaConfig) []uint32 {
	var freqs []uint32
	for _, ch := range cfg.Channels {
		if !ch.Enabled {
			continue
		}
		freqs = append(freqs, au915.UplinkChannelHz(ch.Index))
	}
	return freqs
}

// resolveEUI parses hexEUI if non-empty, otherwise derives one from the
// first non-loopback hardware interface's MAC address.
func resolveEUI(hexEUI string) ([8]byte, error) {
	if hexEUI != "" {
		return gwcore.ParseEUIHex(hexEUI)
	}
	mac, err := gwcore.FirstHardwareAddr()
	if err != nil {
		return [8]byte{}, err
	}
	return gwcore.DeriveEUI(mac)
}
