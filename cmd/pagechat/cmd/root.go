package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/mfenderov/pagechat/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	cfg     config.Config
)

// GetConfig returns the loaded configuration.
func GetConfig() config.Config {
	return cfg
}

var rootCmd = &cobra.Command{
	Use:   "pagechat",
	Short: "pagechat: chat with any web page",
	Long: `pagechat indexes a web page on first submission, then lets each browser
session hold its own conversation about it.

Commands:
  serve      Start the HTTP front end
  mcp        Start the MCP server on stdio
  submit     Submit a URL once from the command line
  search     Search indexed chunks
  snapshots  List archived copies of a page`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig, initLogger)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

func initLogger() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

func initConfig() {
	cfg = config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/pagechat")
		viper.AddConfigPath(".")
	}

	// PAGECHAT_REDIS_ADDR -> redis.addr
	viper.SetEnvPrefix("PAGECHAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// AutomaticEnv only sees keys viper already knows about
	for _, key := range []string{
		"server.address", "server.cookie_name", "server.issue_cookie", "server.cookie_secure",
		"store.backend",
		"redis.addr", "redis.password", "redis.db",
		"index.backend", "index.path",
		"elasticsearch.index", "elasticsearch.username", "elasticsearch.password",
		"embeddings.enabled", "embeddings.socket_path", "embeddings.base_url", "embeddings.model",
		"llm.socket_path", "llm.base_url", "llm.model",
		"storage.endpoint", "storage.bucket", "storage.access_key_id", "storage.secret_access_key",
		"mcp.name", "mcp.version",
	} {
		viper.BindEnv(key)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("config file error", "error", err)
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Warn("failed to parse config", "error", err)
	}

	if addrs := os.Getenv("PAGECHAT_ELASTICSEARCH_ADDRESSES"); addrs != "" {
		cfg.Elasticsearch.Addresses = strings.Split(addrs, ",")
	}
}
