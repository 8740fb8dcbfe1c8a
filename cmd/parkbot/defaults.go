package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	// XMPP account
	viper.SetDefault("xmpp.jid", "")
	viper.SetDefault("xmpp.password", "")

	// Channel behavior
	viper.SetDefault("bot.state_path", "~/.park/state.json")
	viper.SetDefault("bot.plugin_dir", "~/.park/plugins")
	viper.SetDefault("bot.flush_interval", 5*time.Minute)
	viper.SetDefault("bot.chunk_limit", 512)
	viper.SetDefault("bot.command_prefix", ",")
	viper.SetDefault("bot.channel_name", "the park")
	viper.SetDefault("bot.admins", []string{})

	// Chat history (sqlite)
	viper.SetDefault("history.enabled", true)
	viper.SetDefault("history.dsn", "~/.park/history.sqlite")

	// Console front end
	viper.SetDefault("console.flush_interval", 2*time.Second)
}
