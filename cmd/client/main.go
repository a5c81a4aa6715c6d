package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/omochice/framed-duplex/internal/client"
	"github.com/omochice/framed-duplex/internal/config"
	"github.com/omochice/framed-duplex/internal/observability"
	"github.com/omochice/framed-duplex/pkg/protocol"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		address    string
		transport  string
		username   string
	)

	cmd := &cobra.Command{
		Use:          "client",
		Short:        "Line-oriented chat client over a framed duplex connection",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("address") {
				cfg.Client.Address = address
			}
			if cmd.Flags().Changed("transport") {
				cfg.Client.Transport = transport
			}
			if cmd.Flags().Changed("username") {
				cfg.Client.Username = username
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if cfg.Client.Username == "" {
				return errors.New("username is required; use --username")
			}
			return run(cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file")
	cmd.Flags().StringVarP(&address, "address", "a", "", "Server address (host:port, or a ws:// URL)")
	cmd.Flags().StringVarP(&transport, "transport", "t", "", "Transport: tcp or ws")
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username for chat")
	return cmd
}

func run(cfg config.Config) error {
	logger := observability.InitLogger("duplex-client", cfg.Log.Level, cfg.Log.Format)

	c := client.New(client.Options{
		Address:   cfg.Client.Address,
		Transport: cfg.Client.Transport,
		Username:  cfg.Client.Username,
		Config:    cfg.Transport.Duplex(),
		Logger:    logger,
	})
	if err := c.Connect(); err != nil {
		return err
	}
	defer c.Disconnect()

	logger.Info().
		Str("addr", cfg.Client.Address).
		Str("transport", cfg.Client.Transport).
		Str("user", cfg.Client.Username).
		Msg("connected")

	if err := c.Join(); err != nil {
		return fmt.Errorf("failed to join chat: %w", err)
	}

	go func() {
		for msg := range c.Messages() {
			switch msg.Type {
			case protocol.MessageTypeText:
				fmt.Printf("[%s]: %s\n", msg.Sender, msg.Content)
			case protocol.MessageTypeJoin:
				fmt.Printf("*** %s joined the chat ***\n", msg.Sender)
			case protocol.MessageTypeLeave:
				fmt.Printf("*** %s left the chat ***\n", msg.Sender)
			}
		}
		logger.Info().Msg("server closed the connection")
	}()

	fmt.Println("Type your messages (or 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "quit" || text == "exit" {
			break
		}
		if err := c.SendMessage(text); err != nil {
			logger.Warn().Err(err).Msg("failed to send message")
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn().Err(err).Msg("error reading input")
	}

	if err := c.Leave(); err != nil {
		logger.Warn().Err(err).Msg("failed to send leave message")
	}
	return nil
}
