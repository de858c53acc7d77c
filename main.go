package main

import (
	"github.com/chrisvdg/offlinecache/server"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	configFile := pflag.StringP("config", "f", "", "YAML configuration file")
	listAddr := pflag.StringP("listenaddr", "l", ":8080", "http listen address")
	tlsListAddr := pflag.StringP("tlsaddr", "t", ":8443", "https listen address")
	tlsKey := pflag.StringP("tlskey", "k", "", "TLS private key file path")
	tlsCert := pflag.StringP("tlscert", "c", "", "TLS certificate file path")
	tlsOnly := pflag.BoolP("tlsonly", "s", false, "Only serve TLS")
	origin := pflag.StringP("origin", "o", "", "Public origin of the application, e.g. https://app.example")
	upstream := pflag.StringP("upstream", "u", "", "Upstream server the network is reached through")
	version := pflag.String("version", "", "Cache version, names the cache store")
	backend := pflag.StringP("backend", "b", "", "Cache storage backend (memory, leveldb)")
	dir := pflag.StringP("dir", "d", "", "Cache directory for the leveldb backend")
	verbose := pflag.BoolP("verbose", "v", false, "Verbose output")
	pflag.Parse()

	c := server.NewConfig()
	if *configFile != "" {
		var err error
		c, err = server.Load(*configFile)
		if err != nil {
			log.Fatal(err)
		}
	}

	// flags given on the command line take precedence over the file
	flags := pflag.CommandLine
	if flags.Changed("listenaddr") || *configFile == "" {
		c.Server.ListenAddr = *listAddr
	}
	if flags.Changed("tlsaddr") || *configFile == "" {
		c.Server.TLSListenAddr = *tlsListAddr
	}
	if flags.Changed("tlskey") {
		c.Server.TLS.KeyFile = *tlsKey
	}
	if flags.Changed("tlscert") {
		c.Server.TLS.CertFile = *tlsCert
	}
	if flags.Changed("tlsonly") {
		c.Server.TLSOnly = *tlsOnly
	}
	if flags.Changed("origin") {
		c.Server.Origin = *origin
	}
	if flags.Changed("upstream") {
		c.Server.Upstream = *upstream
	}
	if flags.Changed("version") {
		c.Cache.Version = *version
	}
	if flags.Changed("backend") {
		c.Cache.Backend = *backend
	}
	if flags.Changed("dir") {
		c.Cache.Dir = *dir
	}
	if flags.Changed("verbose") {
		c.Verbose = *verbose
	}

	if c.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	s, err := server.New(c)
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close()

	s.ListenAndServe()
}
