package main

import "flag"

type CmdLineEnv struct {
	genconf       bool
	useconf       bool
	useconffile   string
	normaliseconf bool
	confjson      bool
	autoconf      bool
	ver           bool
	logto         string
	loglevel      string
	getpkey       bool
	getidhash     bool
	chuserto      string
}

func newCmdLineEnv() CmdLineEnv {
	var cmdLineEnv CmdLineEnv
	return cmdLineEnv
}

func (cmdLineEnv *CmdLineEnv) parseFlagsAndArgs() {
	genconf := flag.Bool("genconf", false, "print a new config to stdout")
	useconf := flag.Bool("useconf", false, "read HJSON/JSON config from stdin")
	useconffile := flag.String("useconffile", "", "read HJSON/JSON config from specified file path")
	normaliseconf := flag.Bool("normaliseconf", false, "use in combination with either -useconf or -useconffile, outputs your configuration normalised")
	confjson := flag.Bool("json", false, "print configuration from -genconf or -normaliseconf as JSON instead of HJSON")
	autoconf := flag.Bool("autoconf", false, "automatic mode (random identity, no interfaces beyond the defaults)")
	ver := flag.Bool("version", false, "prints the version of this build")
	logto := flag.String("logto", "stdout", "file path to log to, \"syslog\" or \"stdout\"")
	loglevel := flag.String("loglevel", "info", "loglevel to enable")
	getpkey := flag.Bool("publickey", false, "use in combination with either -useconf or -useconffile, outputs your public key")
	getidhash := flag.Bool("identityhash", false, "use in combination with either -useconf or -useconffile, outputs your identity hash")
	chuserto := flag.String("user", "", "user (and, optionally, group) to set UID/GID to")

	flag.Parse()

	cmdLineEnv.genconf = *genconf
	cmdLineEnv.useconf = *useconf
	cmdLineEnv.useconffile = *useconffile
	cmdLineEnv.normaliseconf = *normaliseconf
	cmdLineEnv.confjson = *confjson
	cmdLineEnv.autoconf = *autoconf
	cmdLineEnv.ver = *ver
	cmdLineEnv.logto = *logto
	cmdLineEnv.loglevel = *loglevel
	cmdLineEnv.getpkey = *getpkey
	cmdLineEnv.getidhash = *getidhash
	cmdLineEnv.chuserto = *chuserto
}
