package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-playground/validator"
	"github.com/sheguard/sheguard/server"
	"github.com/sheguard/sheguard/shared"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start a sheguard server",
	Long:  `The sheguard server houses the panic alert, evidence vault & live tracking functionality`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start(serverConfig(), isDevEnv)
	},
}

var serverConfigFile string

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().StringVar(&serverConfigFile, "sconfig", "", "Config for server")
}

func serverConfig() *shared.ServerConfig {
	config := viper.New()

	if isDevEnv && serverConfigFile == "" {
		serverConfigFile = devConfigFilePath()
	}

	config.SetConfigFile(serverConfigFile)
	config.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := config.ReadInConfig(); err != nil {
		log.Panic(fmt.Sprintf("error reading server config file: %v", err))
	}

	serverConfig := shared.ServerConfig{}
	if err := config.Unmarshal(&serverConfig); err != nil {
		log.Panic(fmt.Sprintf("error parsing server config file: %v", err))
	}

	if err := validator.New().Struct(serverConfig); err != nil {
		log.Panic(fmt.Sprintf("invalid server config: %v", err))
	}

	return &serverConfig
}

func devConfigFilePath() string {
	configDir, err := os.Getwd()
	if err != nil {
		log.Panic(err)
	}

	return filepath.Join(configDir, "dev", "config", "server.yml")
}
