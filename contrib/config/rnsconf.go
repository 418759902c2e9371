package main

/*
This is a small utility for provisioning scripts. It takes a HJSON
configuration file, makes changes to it based on the command line
arguments, and then spits out an updated file.
*/

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/hjson/hjson-go/v4"

	"github.com/yggdrasil-network/rnsmesh/src/config"
)

func main() {
	useconffile := flag.String("useconffile", "/etc/rnsd.conf", "update config at specified file path")
	flag.Parse()
	f, err := os.Open(*useconffile)
	if err != nil {
		panic(err)
	}
	cfg := config.GenerateConfig()
	if _, err := cfg.ReadFrom(f); err != nil {
		panic(err)
	}
	_ = f.Close()
	if err := apply(cfg, flag.Arg(0), flag.Arg(1), flag.Arg(2)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	bs, err := hjson.Marshal(cfg)
	if err != nil {
		panic(err)
	}
	fmt.Println(string(bs))
}

func apply(cfg *config.NodeConfig, cmd, arg, value string) error {
	switch cmd {
	case "setAdminListen":
		cfg.AdminListen = arg
	case "setStoragePath":
		cfg.StoragePath = arg
	case "setTransport":
		cfg.EnableTransport = arg == "true"
	case "setBackend":
		cfg.KnownDestinationsBackend = arg
		return cfg.Validate()
	case "addTCPClient":
		host, port, err := net.SplitHostPort(arg)
		if err != nil {
			return err
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return err
		}
		for _, section := range cfg.Interfaces {
			if section["Name"] == arg {
				return nil
			}
		}
		cfg.Interfaces = append(cfg.Interfaces, map[string]interface{}{
			"Type":       "TCPClientInterface",
			"Name":       arg,
			"TargetHost": host,
			"TargetPort": p,
		})
	case "removeInterface":
		kept := cfg.Interfaces[:0]
		for _, section := range cfg.Interfaces {
			if section["Name"] != arg {
				kept = append(kept, section)
			}
		}
		cfg.Interfaces = kept
	case "setInterfaceEnabled":
		for _, section := range cfg.Interfaces {
			if section["Name"] == arg {
				section["Enabled"] = value == "true"
				return nil
			}
		}
		return fmt.Errorf("no interface named %q", arg)
	case "":
	default:
		return errors.New("unknown command " + cmd)
	}
	return nil
}
