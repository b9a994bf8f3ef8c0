// Command flowtag reads an ordered stream of IPv4 packets — from a pcap
// file or a live interface — and emits one 44-field CSV record per
// completed, valid bidirectional flow.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"flowtag/internal/capture"
	"flowtag/internal/decode"
	"flowtag/internal/export"
	"flowtag/internal/flowtable"
	"flowtag/internal/metrics"
)

func main() {
	pcapFile := flag.String("pcap", "", "path to a .pcap file to read (mutually exclusive with -iface)")
	iface := flag.String("iface", "", "network interface to capture live from (mutually exclusive with -pcap)")
	bpf := flag.String("bpf", "", "BPF filter applied to a live capture")
	out := flag.String("out", "-", "output CSV path ('-' for stdout)")
	flowTimeout := flag.Float64("flow-timeout", 600, "FLOW_TIMEOUT in seconds")
	idleThreshold := flag.Float64("idle-threshold", 1.0, "IDLE_THRESHOLD in seconds")
	sweepInterval := flag.Duration("sweep-interval", 10*time.Second, "wall-clock interval between idle sweeps during live capture")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()
	log := logger.Sugar()

	if (*pcapFile == "") == (*iface == "") {
		log.Fatal("exactly one of -pcap or -iface must be set")
	}

	if *metricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				log.Errorw("metrics server stopped", "error", err)
			}
		}()
	}

	outFile := os.Stdout
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatalf("create output file: %v", err)
		}
		defer f.Close()
		outFile = f
	}

	writer := export.NewWriter(outFile)
	cfg := flowtable.Config{FlowTimeout: *flowTimeout, IdleThreshold: *idleThreshold}
	table := flowtable.New(cfg, writer, log, metrics.Recorder{})

	var err error
	if *pcapFile != "" {
		err = runOffline(table, *pcapFile, log)
	} else {
		err = runLive(table, *iface, *bpf, *sweepInterval, log)
	}
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := table.Drain(); err != nil {
		log.Fatalf("drain: %v", err)
	}
	if err := writer.Flush(); err != nil {
		log.Fatalf("flush csv: %v", err)
	}
	log.Infow("done", "records", writer.Len())
}

func runOffline(table *flowtable.Table, path string, log *zap.SugaredLogger) error {
	reader, err := capture.NewPcapReader(path)
	if err != nil {
		return fmt.Errorf("open pcap file: %w", err)
	}
	defer reader.Close()

	source := reader.Packets()
	var epoch time.Time
	n := 0
	for pkt := range source.Packets() {
		if epoch.IsZero() {
			epoch = pkt.Metadata().Timestamp
		}
		pv, ok := decode.Extract(pkt, epoch)
		if !ok {
			continue
		}
		if err := table.Ingest(pv); err != nil {
			return err
		}
		n++
		if n%100000 == 0 {
			log.Infow("progress", "packets", n, "live_flows", table.Len())
		}
	}
	return nil
}

func runLive(table *flowtable.Table, iface, bpf string, sweepInterval time.Duration, log *zap.SugaredLogger) error {
	lc, err := capture.NewLiveCapture(iface, bpf, capture.DefaultSnapLen)
	if err != nil {
		return fmt.Errorf("open live capture: %w", err)
	}
	defer lc.Close()

	source := lc.Packets()
	var epoch time.Time
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	packets := source.Packets()
	for {
		select {
		case pkt, ok := <-packets:
			if !ok {
				return nil
			}
			if epoch.IsZero() {
				epoch = pkt.Metadata().Timestamp
			}
			pv, ok := decode.Extract(pkt, epoch)
			if !ok {
				continue
			}
			if err := table.Ingest(pv); err != nil {
				return err
			}
		case t := <-ticker.C:
			now := t.Sub(epoch).Seconds()
			if err := table.Sweep(now); err != nil {
				return err
			}
		}
	}
}
