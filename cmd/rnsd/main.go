package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gologme/log"
	gsyslog "github.com/hashicorp/go-syslog"
	"github.com/hjson/hjson-go/v4"
	"github.com/kardianos/minwinsvc"

	"github.com/yggdrasil-network/rnsmesh/src/admin"
	"github.com/yggdrasil-network/rnsmesh/src/config"
	"github.com/yggdrasil-network/rnsmesh/src/core"
	database "github.com/yggdrasil-network/rnsmesh/src/db"
	"github.com/yggdrasil-network/rnsmesh/src/interfaces"
	"github.com/yggdrasil-network/rnsmesh/src/monitoring"
	"github.com/yggdrasil-network/rnsmesh/src/multicast"
	"github.com/yggdrasil-network/rnsmesh/src/storage"
	"github.com/yggdrasil-network/rnsmesh/src/version"
)

type node struct {
	core    *core.Core
	admin   *admin.AdminSocket
	db      *database.Database
	monitor *monitoring.Monitoring
}

// The main function is responsible for configuring and starting rnsd.
func main() {
	cmdLineEnv := newCmdLineEnv()
	cmdLineEnv.parseFlagsAndArgs()

	// Catch interrupts from the operating system to exit gracefully.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	// Capture the service being stopped on Windows.
	minwinsvc.SetOnExit(cancel)

	// Create a new logger that logs output to stdout.
	var logger *log.Logger
	switch cmdLineEnv.logto {
	case "stdout":
		logger = log.New(os.Stdout, "", log.Flags())

	case "syslog":
		if syslogger, err := gsyslog.NewLogger(gsyslog.LOG_NOTICE, "DAEMON", version.BuildName()); err == nil {
			logger = log.New(syslogger, "", log.Flags()&^(log.Ldate|log.Ltime))
		}

	default:
		if logfd, err := os.OpenFile(cmdLineEnv.logto, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
			logger = log.New(logfd, "", log.Flags())
		}
	}
	if logger == nil {
		logger = log.New(os.Stdout, "", log.Flags())
		logger.Warnln("Logging defaulting to stdout")
	}
	if cmdLineEnv.normaliseconf {
		setLogLevel("error", logger)
	} else {
		setLogLevel(cmdLineEnv.loglevel, logger)
	}

	cfg := config.GenerateConfig()
	var err error
	switch {
	case cmdLineEnv.ver:
		fmt.Println("Build name:", version.BuildName())
		fmt.Println("Build version:", version.BuildVersion())
		return

	case cmdLineEnv.autoconf:
		// Use an autoconf-generated config, this will give us a random
		// identity and the platform default storage and admin paths.

	case cmdLineEnv.useconf:
		if _, err := cfg.ReadFrom(os.Stdin); err != nil {
			panic(err)
		}

	case cmdLineEnv.useconffile != "":
		f, err := os.Open(cmdLineEnv.useconffile)
		if err != nil {
			panic(err)
		}
		if _, err := cfg.ReadFrom(f); err != nil {
			panic(err)
		}
		_ = f.Close()

	case cmdLineEnv.genconf:
		cfg.AdminListen = ""
		fmt.Println(string(marshalConfig(cfg, cmdLineEnv.confjson)))
		return

	default:
		fmt.Println("Usage:")
		flag.PrintDefaults()

		if cmdLineEnv.getpkey || cmdLineEnv.getidhash {
			fmt.Println("\nError: You need to specify some config data using -useconf or -useconffile.")
		}
		return
	}

	id, err := cfg.Identity()
	if err != nil {
		panic(err)
	}

	switch {
	case cmdLineEnv.getpkey:
		fmt.Println(hex.EncodeToString(id.PublicKey()))
		return

	case cmdLineEnv.getidhash:
		fmt.Println(id.HexHash())
		return

	case cmdLineEnv.normaliseconf:
		fmt.Println(string(marshalConfig(cfg, cmdLineEnv.confjson)))
		return
	}

	n := &node{}

	// Set up the persistent storage.
	fs, err := storage.NewOSFS(cfg.StoragePath)
	if err != nil {
		panic(err)
	}
	withKnown := cfg.KnownDestinationsBackend == config.BackendSQLite
	if n.db, err = database.Open(cfg.StoragePath, withKnown, logger); err != nil {
		panic(err)
	}

	// Set up the node itself.
	{
		options := cfg.CoreOptions()
		options = append(options, core.Storage{Filesystem: fs})
		options = append(options, n.db.Options()...)
		if n.core, err = core.New(id, logger, options...); err != nil {
			panic(err)
		}
		logger.Printf("Your identity hash is %s", id.HexHash())
		logger.Printf("Your public key is %s", hex.EncodeToString(id.PublicKey()))
	}

	// Set up the interfaces.
	var discovery []*multicast.Multicast
	for _, section := range cfg.Interfaces {
		iface, err := interfaces.FromConfig(section, logger)
		switch {
		case errors.Is(err, interfaces.ErrDisabled):
			logger.Debugf("Skipping disabled interface %v", section["Name"])
			continue
		case err != nil:
			logger.Errorf("Interface %v is misconfigured: %v", section["Name"], err)
			continue
		}
		if err := n.core.Transport().RegisterInterface(iface); err != nil {
			logger.Errorf("Failed to start interface %s: %v", iface.Name(), err)
			continue
		}
		if auto, ok := iface.(*interfaces.AutoInterface); ok {
			discovery = append(discovery, auto.Discovery())
		}
	}

	// Set up the admin socket.
	{
		options := []admin.SetupOption{
			admin.ListenAddress(cfg.AdminListen),
		}
		if n.admin, err = admin.New(n.core, logger, options...); err != nil {
			panic(err)
		}
		if n.admin != nil {
			n.admin.SetupAdminHandlers()
			n.admin.SetupMulticastHandlers(discovery)
		}
	}

	// Report interfaces and links as they change.
	n.monitor = monitoring.New(n.core, logger)

	// Change user if requested
	if cmdLineEnv.chuserto != "" {
		err = chuser(cmdLineEnv.chuserto)
		if err != nil {
			panic(err)
		}
	}

	if ok, err := notifyStartupCompleted("identity " + id.HexHash()); err != nil {
		logger.Warnln("Failed to notify service manager:", err)
	} else if ok {
		logger.Debugln("Service manager notified")
	}

	// Block until we are told to shut down.
	<-ctx.Done()

	// Shut down the node.
	_ = n.monitor.Stop()
	_ = n.admin.Stop()
	n.core.Stop()
	_ = n.db.Close()
}

func marshalConfig(cfg *config.NodeConfig, asJSON bool) []byte {
	var bs []byte
	var err error
	if asJSON {
		bs, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		bs, err = hjson.Marshal(cfg)
	}
	if err != nil {
		panic(err)
	}
	return bs
}

func setLogLevel(loglevel string, logger *log.Logger) {
	levels := [...]string{"error", "warn", "info", "debug", "trace"}
	loglevel = strings.ToLower(loglevel)

	contains := func() bool {
		for _, l := range levels {
			if l == loglevel {
				return true
			}
		}
		return false
	}

	if !contains() { // set default log level
		logger.Infoln("Loglevel parse failed. Set default level(info)")
		loglevel = "info"
	}

	for _, l := range levels {
		logger.EnableLevel(l)
		if l == loglevel {
			break
		}
	}
}
