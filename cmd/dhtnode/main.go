package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dhtcore/internal/dht"
	"dhtcore/internal/fabric"
	"dhtcore/internal/paths"
	"dhtcore/internal/peerstore"
	"dhtcore/internal/telemetry"
)

func main() {
	name := flag.String("name", "anon", "display name, used only in log output")
	bind := flag.String("bind", "127.0.0.1:0", "bind address host:port (port 0 picks a free one)")
	bootstrapStr := flag.String("bootstrap", "", "comma-separated bootstrap addresses host:port")
	storePath := flag.String("store", "", "BoltDB path for the peer store (default: a per-user data dir); pass \"-\" to keep candidates in memory only")
	flag.Parse()

	if *storePath == "" {
		*storePath = filepath.Join(paths.DefaultDataDir(), "peerstore.db")
	} else if *storePath == "-" {
		*storePath = ""
	}

	logger := telemetry.NewStdLogger(os.Stdout, fmt.Sprintf("[%s] ", *name))

	host, portStr, err := net.SplitHostPort(*bind)
	if err != nil {
		log.Fatalf("bad -bind %q: %v", *bind, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		log.Fatalf("bad -bind port %q: %v", portStr, err)
	}

	fab, err := fabric.NewTCPFabric(*bind, logger)
	if err != nil {
		log.Fatalf("start fabric: %v", err)
	}

	var store dht.PeerStore
	if *storePath != "" {
		boltStore, err := peerstore.OpenBolt(*storePath, nil)
		if err != nil {
			log.Fatalf("open peer store %q: %v", *storePath, err)
		}
		defer boltStore.Close()
		store = boltStore
	} else {
		store = peerstore.NewMemory()
	}

	cfg := dht.DefaultNodeConfig(fab)
	cfg.Logger = logger
	cfg.PeerStore = store

	node, err := dht.StartNode(host, port, cfg)
	if err != nil {
		log.Fatalf("start node: %v", err)
	}

	fmt.Printf("node started\n")
	fmt.Printf("  id:   %s\n", node.Self().Key)
	fmt.Printf("  addr: %s:%d\n\n", host, port)

	var seeds []dht.Peer
	if *bootstrapStr != "" {
		for _, part := range strings.Split(*bootstrapStr, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			seedHost, seedPortStr, err := net.SplitHostPort(part)
			if err != nil {
				logger.Printf("skipping bad bootstrap address %q: %v", part, err)
				continue
			}
			seedPort, err := strconv.Atoi(seedPortStr)
			if err != nil {
				logger.Printf("skipping bad bootstrap address %q: %v", part, err)
				continue
			}
			// The key is unknown until the seed answers; call() only
			// ever addresses a peer by ip/port, so a zero-value
			// placeholder is safe here.
			seeds = append(seeds, dht.NewPeer(dht.Key{}, seedHost, seedPort))
		}
	}

	if len(seeds) > 0 || *storePath != "" {
		if err := node.Bootstrap(seeds...); err != nil {
			logger.Printf("bootstrap: %v", err)
		} else {
			fmt.Printf("bootstrap complete, routing table has %d peers\n", node.Table().PeerCount())
		}
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		logger.Printf("routing table size: %d", node.Table().PeerCount())
	}
}
