package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"posnode/app"
	"posnode/config"
	"posnode/logs"

	"github.com/spf13/cobra"
)

// 构建时通过 -ldflags "-X main.version=..." 注入
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "posnode",
		Short:         "Proof-of-stake ledger node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newVersionCmd())
	return root
}

type runFlags struct {
	configFile string
	dataDir    string
	listen     string
	advertise  string
	seeds      []string
	logLevel   string
	noStaking  bool
}

func newRunCmd() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a full node",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return runNode(cfg)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&f.configFile, "config", "", "config file path (yaml/json/toml)")
	flags.StringVar(&f.dataDir, "data", "", "data directory")
	flags.StringVar(&f.listen, "listen", "", "HTTP/3 listen address")
	flags.StringVar(&f.advertise, "advertise", "", "address announced to peers")
	flags.StringSliceVar(&f.seeds, "seeds", nil, "seed peer addresses")
	flags.StringVar(&f.logLevel, "log-level", "", "trace|debug|verbose|info|warn|error")
	flags.BoolVar(&f.noStaking, "no-staking", false, "disable block production")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the node version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

// loadConfig 配置文件打底，命令行参数覆盖
func loadConfig(cmd *cobra.Command, f *runFlags) (*config.Config, error) {
	cfg, err := config.LoadFromFile(f.configFile)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("data") {
		cfg.Node.DataDir = f.dataDir
	}
	if flags.Changed("listen") {
		cfg.Server.ListenAddr = f.listen
	}
	if flags.Changed("advertise") {
		cfg.Network.AdvertiseAddr = f.advertise
	}
	if flags.Changed("seeds") {
		cfg.Network.Seeds = f.seeds
	}
	if flags.Changed("log-level") {
		cfg.Node.LogLevel = f.logLevel
	}
	if f.noStaking {
		cfg.Staking.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runNode(cfg *config.Config) error {
	level, err := logs.ParseLevel(cfg.Node.LogLevel)
	if err != nil {
		return err
	}
	logs.SetLevel(level)
	logger := logs.NewNodeLogger(cfg.Node.Name, 1000)
	logs.SetDefault(logger)
	defer logs.Sync()

	node, err := app.NewNode(cfg, logger)
	if err != nil {
		return fmt.Errorf("init node: %w", err)
	}
	if err := node.Start(); err != nil {
		_ = node.Stop()
		return fmt.Errorf("start node: %w", err)
	}

	// 等待退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received signal: %v, shutting down...", sig)
	return node.Stop()
}
