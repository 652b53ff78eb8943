// device-sim runs the device stack against an in-process simulated network:
// it joins, sends periodic uplinks and logs the downlinks the simulated
// network schedules. Useful for exercising the MAC layer end-to-end without
// radio hardware.
package main

import (
	"context"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/lorastack/lorawan/band"
	"github.com/lorastack/lorawan/config"
	"github.com/lorastack/lorawan/device"
	"github.com/lorastack/lorawan/store"
)

func main() {
	configPath := flag.String("config", "device-sim.yaml", "path to the device configuration")
	interval := flag.Duration("interval", 10*time.Second, "uplink interval")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Warning("using the default configuration")
		cfg = config.DefaultConfig()
		cfg.OTAA = config.OTAAConfig{
			DevEUI:  "0303030303030303",
			JoinEUI: "0202020202020202",
			AppKey:  "01010101010101010101010101010101",
		}
	}

	bnd, err := band.GetConfig(cfg.Region, cfg.DwellTime())
	if err != nil {
		log.WithError(err).Fatal("select band")
	}

	otaa, err := cfg.OTAA.Parse()
	if err != nil {
		log.WithError(err).Fatal("parse credentials")
	}

	if cfg.JoinSubBand > 0 {
		if err := bnd.SetJoinBias(cfg.JoinSubBand); err != nil {
			log.WithError(err).Fatal("set join sub-band")
		}
	}

	nonces := store.NewMemoryStore(nil)
	radio := newSimRadio(otaa.AppKey)

	dev, err := device.New(device.Config{
		Band:       bnd,
		Radio:      radio,
		Timer:      systemTimer{},
		Rand:       randSource{},
		NonceStore: store.Nonces(nonces, otaa.DevEUI),
		Class:      cfg.DeviceClass(),
		OTAA:       otaa,
		TxPowerDBm: cfg.TxPowerDBm,
	})
	if err != nil {
		log.WithError(err).Fatal("create device")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"region": bnd.Name(),
		"class":  cfg.Class,
	}).Info("joining")

	if err := dev.Join(ctx); err != nil {
		log.WithError(err).Fatal("join")
	}
	sess := dev.Session()
	log.WithFields(log.Fields{
		"dev_addr": sess.DevAddr,
	}).Info("joined")

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	var seq uint32
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case <-ticker.C:
		}

		seq++
		resp, err := dev.Send(ctx, 2, []byte{byte(seq >> 8), byte(seq)}, seq%4 == 0)
		fields := log.Fields{
			"f_cnt_up": dev.Session().FCntUp,
		}
		switch {
		case err == device.ErrNoAck:
			log.WithFields(fields).Warning("confirmed uplink not acknowledged")
		case err != nil:
			log.WithError(err).WithFields(fields).Error("send")
			continue
		default:
			log.WithFields(fields).Info("uplink sent")
		}

		if resp.Downlink != nil {
			log.WithFields(log.Fields{
				"port":    resp.Downlink.Port,
				"payload": resp.Downlink.Payload,
				"rssi":    resp.Downlink.RSSI,
				"snr":     resp.Downlink.SNR,
			}).Info("downlink received")
		}
	}
}

// systemTimer implements the timer capability on the host clock.
type systemTimer struct{}

func (systemTimer) Now() time.Time {
	return time.Now()
}

func (systemTimer) DelayUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// randSource implements the RNG capability.
type randSource struct{}

func (randSource) Uint32() uint32 {
	return rand.Uint32()
}
