package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"

	"github.com/gologme/log"
	"github.com/hjson/hjson-go/v4"
	"golang.org/x/text/encoding/unicode"

	"github.com/yggdrasil-network/rnsmesh/src/defaults"
)

type CmdLineEnv struct {
	args                 []string
	endpoint, server     string
	config               string
	injson, verbose, ver bool
}

func newCmdLineEnv() CmdLineEnv {
	var cmdLineEnv CmdLineEnv
	cmdLineEnv.endpoint = defaults.GetDefaults().DefaultAdminListen
	return cmdLineEnv
}

func (cmdLineEnv *CmdLineEnv) parseFlagsAndArgs() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options] command [key=value] [key=value] ...\n\n", os.Args[0])
		fmt.Println("Options:")
		flag.PrintDefaults()
		fmt.Println()
		fmt.Println("Please note that options must always specified BEFORE the command\non the command line or they will be ignored.")
		fmt.Println()
		fmt.Println("Commands:\n  - Use \"list\" for a list of available commands")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  - ", os.Args[0], "list")
		fmt.Println("  - ", os.Args[0], "getPaths")
		fmt.Println("  - ", os.Args[0], "-v getSelf")
		fmt.Println("  - ", os.Args[0], "requestPath destination=9a0f3b1c2d4e5f60718293a4b5c6d7e8")
		fmt.Println("  - ", os.Args[0], "-endpoint=tcp://localhost:9001 getInterfaces")
		fmt.Println("  - ", os.Args[0], "-endpoint=unix:///var/run/rnsd.sock getLinks")
	}

	server := flag.String("endpoint", cmdLineEnv.endpoint, "Admin socket endpoint")
	config := flag.String("config", defaults.GetDefaults().DefaultConfigFile, "Config file to read the admin endpoint from")
	injson := flag.Bool("json", false, "Output in JSON format (as opposed to pretty-print)")
	verbose := flag.Bool("v", false, "Verbose output (includes public keys and connection logs)")
	ver := flag.Bool("version", false, "Prints the version of this build")

	flag.Parse()

	cmdLineEnv.args = flag.Args()
	cmdLineEnv.server = *server
	cmdLineEnv.config = *config
	cmdLineEnv.injson = *injson
	cmdLineEnv.verbose = *verbose
	cmdLineEnv.ver = *ver
}

// setEndpoint prefers an endpoint given on the command line, then the
// AdminListen option of the config file, then the platform default.
func (cmdLineEnv *CmdLineEnv) setEndpoint(logger *log.Logger) {
	if cmdLineEnv.server != cmdLineEnv.endpoint {
		cmdLineEnv.endpoint = cmdLineEnv.server
		logger.Println("Using endpoint", cmdLineEnv.endpoint, "from command line")
		return
	}
	ep, err := adminListenFromConfig(cmdLineEnv.config)
	switch {
	case err != nil:
		logger.Println("Can't read config file", cmdLineEnv.config+":", err)
		logger.Println("Falling back to platform default", cmdLineEnv.endpoint)
	case ep == "" || ep == "none":
		logger.Println("Configuration file doesn't contain appropriate AdminListen option")
		logger.Println("Falling back to platform default", cmdLineEnv.endpoint)
	default:
		cmdLineEnv.endpoint = ep
		logger.Println("Found config file", cmdLineEnv.config)
		logger.Println("Using endpoint", cmdLineEnv.endpoint, "from AdminListen")
	}
}

func adminListenFromConfig(path string) (string, error) {
	conf, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if bytes.HasPrefix(conf, []byte{0xFF, 0xFE}) || bytes.HasPrefix(conf, []byte{0xFE, 0xFF}) {
		utf := unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
		if conf, err = utf.NewDecoder().Bytes(conf); err != nil {
			return "", err
		}
	}
	conf = bytes.TrimPrefix(conf, []byte{0xEF, 0xBB, 0xBF})
	var dat map[string]interface{}
	if err := hjson.Unmarshal(conf, &dat); err != nil {
		return "", err
	}
	ep, _ := dat["AdminListen"].(string)
	return ep, nil
}
