package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/obsidian-reach/gossipkv"
	"github.com/obsidian-reach/gossipkv/pkg/codec"
	"github.com/obsidian-reach/gossipkv/pkg/config"
	"github.com/obsidian-reach/gossipkv/pkg/metrics"
	"github.com/obsidian-reach/gossipkv/pkg/store"
)

// demoTable is the schema the start/serialize/deserialize subcommands
// all exercise: a simple string-to-string key/value table that, unlike
// a schema-less table, can round-trip through the text codec.
func demoTable() store.TableDescriptor {
	return store.TableDescriptor{
		Name:    "KV",
		KeyType: store.KeyTypeString,
		Schema: store.Schema{
			"value": {store.TypeString},
		},
	}
}

func main() {
	_ = godotenv.Load(".env")

	rootCmd := &cobra.Command{Use: "gossipkvd"}
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(serializeCmd())
	rootCmd.AddCommand(deserializeCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func startCmd() *cobra.Command {
	var env, clusterID, namespace, listenAddr string
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "start a node and gossip the demo KV table against any peers it discovers",
		Run: func(cmd *cobra.Command, args []string) {
			logger := logrus.StandardLogger()

			cfg, err := config.Load(env)
			if err != nil {
				logger.Warnf("gossipkvd: config load failed, using flag/built-in defaults: %v", err)
				cfg = &config.Config{}
			}
			if clusterID == "" {
				clusterID = cfg.Node.ClusterID
			}
			if namespace == "" {
				namespace = cfg.Node.Namespace
			}
			if listenAddr == "" {
				listenAddr = cfg.Node.ListenAddr
			}

			rec := metrics.New()
			inst, err := gossipkv.Create(gossipkv.DatabaseConfig{
				ClusterID:        clusterID,
				Namespace:        namespace,
				BrokerListenAddr: listenAddr,
				Metrics:          rec,
				Logger:           logger,
				OnDiscoveryComplete: func(isInitial bool) {
					logger.Infof("gossipkvd: discovery round complete (initial=%v), peers=%v", isInitial, inst.GetDiscoveredPeers())
				},
			})
			if err != nil {
				logger.Fatalf("gossipkvd: create database: %v", err)
			}
			defer func() {
				if err := gossipkv.Drop(clusterID); err != nil {
					logger.Warnf("gossipkvd: drop on shutdown: %v", err)
				}
			}()

			if err := inst.NewTable(gossipkv.TableConfig{
				Name:    demoTable().Name,
				KeyType: demoTable().KeyType,
				Schema:  demoTable().Schema,
			}); err != nil {
				logger.Fatalf("gossipkvd: declare KV table: %v", err)
			}

			if metricsAddr != "" {
				srv := rec.NewDebugServer(
					func() (any, error) { return inst.Export() },
					func() any { return inst.GetDiscoveredPeers() },
				)
				go func() {
					logger.Infof("gossipkvd: metrics listening on %s", metricsAddr)
					if err := http.ListenAndServe(metricsAddr, srv); err != nil {
						logger.Warnf("gossipkvd: metrics server: %v", err)
					}
				}()
			}

			inst.DiscoverPeers()
			ticker := time.NewTicker(5 * time.Second)
			defer ticker.Stop()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Infof("gossipkvd: node %s started, cluster=%s namespace=%s", inst.GetPeerID(), clusterID, namespace)
			for {
				select {
				case <-ctx.Done():
					logger.Info("gossipkvd: shutting down")
					return
				case <-ticker.C:
					inst.SyncNow()
				}
			}
		},
	}

	cmd.Flags().StringVar(&env, "env", "", "environment name merged over config/default.yaml")
	cmd.Flags().StringVar(&clusterID, "cluster", "", "cluster ID (overrides config)")
	cmd.Flags().StringVar(&namespace, "namespace", "", "namespace (overrides config)")
	cmd.Flags().StringVar(&listenAddr, "listen", "", "libp2p listen multiaddr (overrides config)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve /metrics, /export, /peers on; empty disables")
	return cmd
}

func serializeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serialize [seed.json]",
		Short: "load key/value pairs from a JSON file and print the text wire format",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			logger := logrus.StandardLogger()

			raw, err := os.ReadFile(args[0])
			if err != nil {
				logger.Fatalf("gossipkvd: read %s: %v", args[0], err)
			}
			var seed map[string]string
			if err := json.Unmarshal(raw, &seed); err != nil {
				logger.Fatalf("gossipkvd: parse %s: %v", args[0], err)
			}

			st := store.NewStore(nil, logger)
			if err := st.NewTable(demoTable()); err != nil {
				logger.Fatalf("gossipkvd: declare KV table: %v", err)
			}
			for key, value := range seed {
				if _, err := st.Set("KV", key, map[string]any{"value": value}, "cli", nil); err != nil {
					logger.Fatalf("gossipkvd: set %s: %v", key, err)
				}
			}

			out, err := codec.Serialize(st)
			if err != nil {
				logger.Fatalf("gossipkvd: serialize: %v", err)
			}
			fmt.Println(out)
		},
	}
	return cmd
}

func deserializeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deserialize [snapshot.txt]",
		Short: "parse a text wire format snapshot and print its rows as JSON",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			logger := logrus.StandardLogger()

			raw, err := os.ReadFile(args[0])
			if err != nil {
				logger.Fatalf("gossipkvd: read %s: %v", args[0], err)
			}

			st := store.NewStore(nil, logger)
			if err := st.NewTable(demoTable()); err != nil {
				logger.Fatalf("gossipkvd: declare KV table: %v", err)
			}
			warnings, err := codec.Deserialize(st, string(raw))
			if err != nil {
				logger.Fatalf("gossipkvd: deserialize: %v", err)
			}
			for _, w := range warnings {
				logger.Warnf("gossipkvd: %s", w)
			}

			keys, err := st.Keys("KV")
			if err != nil {
				logger.Fatalf("gossipkvd: keys: %v", err)
			}
			out := make(map[string]any, len(keys))
			for _, key := range keys {
				data, _, _ := st.Get("KV", key)
				out[fmt.Sprintf("%v", key)] = data
			}

			encoded, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				logger.Fatalf("gossipkvd: marshal: %v", err)
			}
			fmt.Println(string(encoded))
		},
	}
	return cmd
}
