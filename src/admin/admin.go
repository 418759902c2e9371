package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gologme/log"
	"github.com/mitchellh/mapstructure"

	"github.com/yggdrasil-network/rnsmesh/src/core"
)

// TODO: Add authentication

type AdminSocket struct {
	core     *core.Core
	log      core.Logger
	listener net.Listener
	handlers map[string]handler
	done     chan struct{}
	config   struct {
		listenaddr ListenAddress
	}
}

type AdminSocketRequest struct {
	Name      string          `json:"request"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	KeepAlive bool            `json:"keepalive,omitempty"`
}

type AdminSocketResponse struct {
	Status   string              `json:"status"`
	Error    string              `json:"error,omitempty"`
	Request  *AdminSocketRequest `json:"request"`
	Response json.RawMessage     `json:"response"`
}

// Info holds the decoded arguments of a request.
type Info map[string]interface{}

type HandlerFunc func(in Info) (interface{}, error)

type handler struct {
	desc    string      // Description of the command
	args    []string    // List of human-readable argument names
	handler HandlerFunc // Returns the response object
}

type ListResponse struct {
	List []ListEntry `json:"list"`
}

type ListEntry struct {
	Command     string   `json:"command"`
	Description string   `json:"description"`
	Fields      []string `json:"fields,omitempty"`
}

// AddHandler is called for each admin function to add the handler and help documentation to the API.
func (a *AdminSocket) AddHandler(name, desc string, args []string, handlerfunc HandlerFunc) error {
	if _, ok := a.handlers[strings.ToLower(name)]; ok {
		return errors.New("handler already exists")
	}
	a.handlers[strings.ToLower(name)] = handler{
		desc:    desc,
		args:    args,
		handler: handlerfunc,
	}
	return nil
}

// CallHandler runs a handler directly, without going through the socket.
// Arguments are given as a JSON object.
func (a *AdminSocket) CallHandler(name string, args json.RawMessage) (interface{}, error) {
	h, ok := a.handlers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown action '%s', try 'list' for help", name)
	}
	in := Info{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("failed to unmarshal arguments: %w", err)
		}
	}
	for _, arg := range h.args {
		// An argument in [square brackets] is optional and not required,
		// so we can safely ignore those
		if strings.HasPrefix(arg, "[") && strings.HasSuffix(arg, "]") {
			continue
		}
		if _, ok := in[arg]; !ok {
			return nil, fmt.Errorf("expected field missing: %s", arg)
		}
	}
	return h.handler(in)
}

// decodeArgs fills the request struct req from the loosely typed
// arguments, so that rnsctl can send every value as a string.
func decodeArgs(in Info, req interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           req,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(map[string]interface{}(in))
}

// New creates an admin socket for c. It returns nil without error when the
// listen address is empty or "none".
func New(c *core.Core, logger core.Logger, opts ...SetupOption) (*AdminSocket, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	a := &AdminSocket{
		core:     c,
		log:      logger,
		handlers: make(map[string]handler),
	}
	for _, opt := range opts {
		a._applyOption(opt)
	}
	if a.config.listenaddr == "none" || a.config.listenaddr == "" {
		return nil, nil
	}
	_ = a.AddHandler("list", "List available commands", []string{}, func(_ Info) (interface{}, error) {
		res := &ListResponse{}
		for name, handler := range a.handlers {
			res.List = append(res.List, ListEntry{
				Command:     name,
				Description: handler.desc,
				Fields:      handler.args,
			})
		}
		sort.SliceStable(res.List, func(i, j int) bool {
			return strings.Compare(res.List[i].Command, res.List[j].Command) < 0
		})
		return res, nil
	})
	listener, err := listenOn(string(a.config.listenaddr), a.log)
	if err != nil {
		return nil, fmt.Errorf("admin socket failed to listen: %w", err)
	}
	a.listener = listener
	a.done = make(chan struct{})
	a.log.Infof("%s admin socket listening on %s",
		strings.ToUpper(a.listener.Addr().Network()),
		a.listener.Addr().String())
	go a.listen()
	return a, nil
}

func (a *AdminSocket) SetupAdminHandlers() {
	_ = a.AddHandler("getSelf", "Show details about this node", []string{}, func(in Info) (interface{}, error) {
		req := &GetSelfRequest{}
		res := &GetSelfResponse{}
		if err := decodeArgs(in, req); err != nil {
			return nil, err
		}
		if err := a.getSelfHandler(req, res); err != nil {
			return nil, err
		}
		return res, nil
	})
	_ = a.AddHandler("getPaths", "Show the path table", []string{}, func(in Info) (interface{}, error) {
		req := &GetPathsRequest{}
		res := &GetPathsResponse{}
		if err := decodeArgs(in, req); err != nil {
			return nil, err
		}
		if err := a.getPathsHandler(req, res); err != nil {
			return nil, err
		}
		return res, nil
	})
	_ = a.AddHandler("dropPath", "Remove the path to a destination", []string{"destination"}, func(in Info) (interface{}, error) {
		req := &DropPathRequest{}
		res := &DropPathResponse{}
		if err := decodeArgs(in, req); err != nil {
			return nil, err
		}
		if err := a.dropPathHandler(req, res); err != nil {
			return nil, err
		}
		return res, nil
	})
	_ = a.AddHandler("dropAllVia", "Remove every path through a transport node", []string{"transport_id"}, func(in Info) (interface{}, error) {
		req := &DropAllViaRequest{}
		res := &DropAllViaResponse{}
		if err := decodeArgs(in, req); err != nil {
			return nil, err
		}
		if err := a.dropAllViaHandler(req, res); err != nil {
			return nil, err
		}
		return res, nil
	})
	_ = a.AddHandler("dropAnnounceQueues", "Discard all announces waiting for rebroadcast", []string{}, func(in Info) (interface{}, error) {
		req := &DropAnnounceQueuesRequest{}
		res := &DropAnnounceQueuesResponse{}
		if err := decodeArgs(in, req); err != nil {
			return nil, err
		}
		if err := a.dropAnnounceQueuesHandler(req, res); err != nil {
			return nil, err
		}
		return res, nil
	})
	_ = a.AddHandler("requestPath", "Ask the network for a path to a destination", []string{"destination"}, func(in Info) (interface{}, error) {
		req := &RequestPathRequest{}
		res := &RequestPathResponse{}
		if err := decodeArgs(in, req); err != nil {
			return nil, err
		}
		if err := a.requestPathHandler(req, res); err != nil {
			return nil, err
		}
		return res, nil
	})
	_ = a.AddHandler("getInterfaces", "Show interfaces and their traffic counters", []string{}, func(in Info) (interface{}, error) {
		req := &GetInterfacesRequest{}
		res := &GetInterfacesResponse{}
		if err := decodeArgs(in, req); err != nil {
			return nil, err
		}
		if err := a.getInterfacesHandler(req, res); err != nil {
			return nil, err
		}
		return res, nil
	})
	_ = a.AddHandler("getLinks", "Show open links", []string{}, func(in Info) (interface{}, error) {
		req := &GetLinksRequest{}
		res := &GetLinksResponse{}
		if err := decodeArgs(in, req); err != nil {
			return nil, err
		}
		if err := a.getLinksHandler(req, res); err != nil {
			return nil, err
		}
		return res, nil
	})
	_ = a.AddHandler("getKnownDestinations", "Show destinations learned from announces", []string{"[filter]"}, func(in Info) (interface{}, error) {
		req := &GetKnownDestinationsRequest{}
		res := &GetKnownDestinationsResponse{}
		if err := decodeArgs(in, req); err != nil {
			return nil, err
		}
		if err := a.getKnownDestinationsHandler(req, res); err != nil {
			return nil, err
		}
		return res, nil
	})
	_ = a.AddHandler("saveKnownDestinations", "Write known destinations to storage now", []string{}, func(in Info) (interface{}, error) {
		req := &SaveKnownDestinationsRequest{}
		res := &SaveKnownDestinationsResponse{}
		if err := decodeArgs(in, req); err != nil {
			return nil, err
		}
		if err := a.saveKnownDestinationsHandler(req, res); err != nil {
			return nil, err
		}
		return res, nil
	})
}

// IsStarted returns true if the module has been started.
func (a *AdminSocket) IsStarted() bool {
	select {
	case <-a.done:
		// Not blocking, so we're not currently running
		return false
	default:
		// Blocked, so we must have started
		return true
	}
}

// Addr returns the address the admin socket listens on, once listening.
func (a *AdminSocket) Addr() net.Addr {
	if a == nil || a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Stop will stop the admin API and close the socket.
func (a *AdminSocket) Stop() error {
	if a == nil {
		return nil
	}
	if a.listener != nil {
		select {
		case <-a.done:
			return nil
		default:
			close(a.done)
		}
		return a.listener.Close()
	}
	return nil
}

// listen is run by New and manages API connections.
func (a *AdminSocket) listen() {
	defer a.listener.Close()
	for {
		conn, err := a.listener.Accept()
		if err == nil {
			go a.handleRequest(conn)
		} else {
			select {
			case <-a.done:
				return
			default:
				a.log.Debugln("Admin socket accept error:", err)
			}
		}
	}
}

// listenOn opens a unix or TCP listener for a URI-style address, cleaning
// up a stale unix socket left behind by a previous run.
func listenOn(listenaddr string, logger core.Logger) (net.Listener, error) {
	u, err := url.Parse(listenaddr)
	if err != nil {
		return net.Listen("tcp", listenaddr)
	}
	switch strings.ToLower(u.Scheme) {
	case "unix":
		path := listenaddr[7:]
		if _, err := os.Stat(path); err == nil {
			logger.Debugln("Admin socket", path, "already exists, trying to clean up")
			if _, err := net.DialTimeout("unix", path, time.Second*2); err == nil || err.(net.Error).Timeout() {
				return nil, fmt.Errorf("admin socket %s already exists and is in use by another process", path)
			}
			if err := os.Remove(path); err != nil {
				return nil, fmt.Errorf("admin socket %s already exists and was not cleaned up: %w", path, err)
			}
			logger.Debugln(path, "was cleaned up")
		}
		listener, err := net.Listen("unix", path)
		if err != nil {
			return nil, err
		}
		switch path[:1] {
		case "@": // maybe abstract namespace
		default:
			if err := os.Chmod(path, 0660); err != nil {
				logger.Warnln("WARNING:", path, "may have unsafe permissions!")
			}
		}
		return listener, nil
	case "tcp":
		return net.Listen("tcp", u.Host)
	default:
		return net.Listen("tcp", listenaddr)
	}
}

// handleRequest calls the request handler for each request sent to the admin API.
func (a *AdminSocket) handleRequest(conn net.Conn) {
	decoder := json.NewDecoder(conn)
	decoder.DisallowUnknownFields()

	encoder := json.NewEncoder(conn)
	encoder.SetIndent("", "  ")

	defer conn.Close()

	defer func() {
		r := recover()
		if r != nil {
			a.log.Debugln("Admin socket error:", r)
			if err := encoder.Encode(&AdminSocketResponse{
				Status: "error",
				Error:  "Check your syntax and input types",
			}); err != nil {
				a.log.Debugln("Admin socket JSON encode error:", err)
			}
		}
	}()

	for {
		var err error
		var req AdminSocketRequest
		var resp AdminSocketResponse
		if err := func() error {
			if err = decoder.Decode(&req); err != nil {
				return fmt.Errorf("failed to find request: %w", err)
			}
			resp.Request = &req
			if req.Name == "" {
				return fmt.Errorf("no request specified")
			}
			res, err := a.CallHandler(req.Name, req.Arguments)
			if err != nil {
				return err
			}
			if resp.Response, err = json.Marshal(res); err != nil {
				return fmt.Errorf("failed to marshal response: %w", err)
			}
			resp.Status = "success"
			return nil
		}(); err != nil {
			resp.Status = "error"
			resp.Error = err.Error()
		}
		if err = encoder.Encode(resp); err != nil {
			a.log.Debugln("Encode error:", err)
		}
		if !req.KeepAlive {
			break
		}
	}
}

// DataUnit is a byte count that prints with a binary unit suffix.
type DataUnit uint64

func (d DataUnit) String() string {
	switch {
	case d > 1024*1024*1024*1024:
		return fmt.Sprintf("%2.fTB", float64(d)/1024/1024/1024/1024)
	case d > 1024*1024*1024:
		return fmt.Sprintf("%2.fGB", float64(d)/1024/1024/1024)
	case d > 1024*1024:
		return fmt.Sprintf("%2.fMB", float64(d)/1024/1024)
	default:
		return fmt.Sprintf("%2.fKB", float64(d)/1024)
	}
}
