package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gologme/log"
	"github.com/olekukonko/tablewriter"

	"github.com/yggdrasil-network/rnsmesh/src/admin"
	"github.com/yggdrasil-network/rnsmesh/src/version"
)

func main() {
	// makes sure we can use defer and still return an error code to the OS
	os.Exit(run())
}

func run() (code int) {
	logbuffer := &bytes.Buffer{}
	logger := log.New(logbuffer, "", log.Flags())

	defer func() {
		if r := recover(); r != nil {
			logger.Println("Fatal error:", r)
			fmt.Print(logbuffer)
			code = 1
		}
	}()

	cmdLineEnv := newCmdLineEnv()
	cmdLineEnv.parseFlagsAndArgs()

	if cmdLineEnv.verbose {
		logger.SetOutput(io.MultiWriter(logbuffer, os.Stderr))
	}

	if cmdLineEnv.ver {
		fmt.Println("Build name:", version.BuildName())
		fmt.Println("Build version:", version.BuildVersion())
		fmt.Println("To get the version number of the running node, run", os.Args[0], "getSelf")
		return 0
	}

	if len(cmdLineEnv.args) == 0 {
		flag.Usage()
		return 0
	}

	cmdLineEnv.setEndpoint(logger)

	conn, err := dial(cmdLineEnv.endpoint, logger)
	if err != nil {
		panic(err)
	}

	logger.Println("Connected")
	defer conn.Close()

	send, err := buildRequest(cmdLineEnv.args, logger)
	if err != nil {
		panic(err)
	}
	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)
	recv := &admin.AdminSocketResponse{}
	if err := encoder.Encode(send); err != nil {
		panic(err)
	}
	logger.Printf("Request sent")
	if err := decoder.Decode(recv); err != nil {
		panic(err)
	}
	if recv.Status == "error" {
		if err := recv.Error; err != "" {
			fmt.Println("Admin socket returned an error:", err)
		} else {
			fmt.Println("Admin socket returned an error but didn't specify any error text")
		}
		return 1
	}
	if cmdLineEnv.injson {
		if json, err := json.MarshalIndent(recv.Response, "", "  "); err == nil {
			fmt.Println(string(json))
		}
		return 0
	}

	if err := render(os.Stdout, send.Name, recv.Response, cmdLineEnv.verbose); err != nil {
		panic(err)
	}
	return 0
}

func dial(endpoint string, logger *log.Logger) (net.Conn, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		logger.Println("Connecting to TCP socket", endpoint)
		return net.Dial("tcp", endpoint)
	}
	switch strings.ToLower(u.Scheme) {
	case "unix":
		logger.Println("Connecting to UNIX socket", endpoint[7:])
		return net.Dial("unix", endpoint[7:])
	case "tcp":
		logger.Println("Connecting to TCP socket", u.Host)
		return net.Dial("tcp", u.Host)
	default:
		logger.Println("Unknown protocol or malformed address - check your endpoint")
		return nil, errors.New("protocol not supported")
	}
}

// buildRequest turns "command key=value ..." into an admin request.
func buildRequest(args []string, logger *log.Logger) (*admin.AdminSocketRequest, error) {
	send := &admin.AdminSocketRequest{}
	fields := map[string]string{}
	for c, a := range args {
		if c == 0 {
			if strings.HasPrefix(a, "-") {
				logger.Printf("Ignoring flag %s as it should be specified before other parameters\n", a)
				continue
			}
			logger.Printf("Sending request: %v\n", a)
			send.Name = a
			continue
		}
		key, value, ok := strings.Cut(a, "=")
		if !ok {
			logger.Println("Ignoring invalid argument:", a)
			continue
		}
		fields[key] = value
	}
	var err error
	send.Arguments, err = json.Marshal(fields)
	return send, err
}

func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t") // pad with tabs
	table.SetNoWhiteSpace(true)
	table.SetAutoWrapText(false)
	return table
}

func seconds(s float64) string {
	return (time.Duration(s * float64(time.Second))).Round(time.Millisecond).String()
}

func unixTime(ts int64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(ts, 0).Format(time.DateTime)
}

func render(w io.Writer, command string, response json.RawMessage, verbose bool) error {
	table := newTable(w)
	switch strings.ToLower(command) {
	case "list":
		var resp admin.ListResponse
		if err := json.Unmarshal(response, &resp); err != nil {
			return err
		}
		table.SetHeader([]string{"Command", "Arguments", "Description"})
		for _, entry := range resp.List {
			for i := range entry.Fields {
				entry.Fields[i] = entry.Fields[i] + "=..."
			}
			table.Append([]string{entry.Command, strings.Join(entry.Fields, ", "), entry.Description})
		}
		table.Render()

	case "getself":
		var resp admin.GetSelfResponse
		if err := json.Unmarshal(response, &resp); err != nil {
			return err
		}
		table.Append([]string{"Build name:", resp.BuildName})
		table.Append([]string{"Build version:", resp.BuildVersion})
		table.Append([]string{"Identity hash:", resp.IdentityHash})
		if verbose {
			table.Append([]string{"Public key:", resp.PublicKey})
		}
		table.Append([]string{"Transport enabled:", fmt.Sprintf("%v", resp.TransportEnabled)})
		table.Append([]string{"Destinations:", fmt.Sprintf("%d", resp.Destinations)})
		table.Append([]string{"Uptime:", (time.Duration(resp.Uptime) * time.Second).String()})
		table.Render()

	case "getpaths":
		var resp admin.GetPathsResponse
		if err := json.Unmarshal(response, &resp); err != nil {
			return err
		}
		table.SetHeader([]string{"Destination", "Via", "Hops", "Interface", "Expires"})
		for _, p := range resp.Paths {
			table.Append([]string{
				p.Destination,
				p.NextHop,
				fmt.Sprintf("%d", p.Hops),
				p.Interface,
				unixTime(p.Expires),
			})
		}
		table.Render()

	case "getinterfaces":
		var resp admin.GetInterfacesResponse
		if err := json.Unmarshal(response, &resp); err != nil {
			return err
		}
		table.SetHeader([]string{"Name", "State", "Mode", "Dir", "RX", "TX", "RX Pkts", "TX Pkts"})
		for _, iface := range resp.Interfaces {
			state := "Up"
			if !iface.Online {
				state = "Down"
			}
			table.Append([]string{
				iface.Name,
				state,
				iface.Mode,
				iface.Direction,
				iface.RXBytes.String(),
				iface.TXBytes.String(),
				fmt.Sprintf("%d", iface.RXPackets),
				fmt.Sprintf("%d", iface.TXPackets),
			})
		}
		table.Render()

	case "getlinks":
		var resp admin.GetLinksResponse
		if err := json.Unmarshal(response, &resp); err != nil {
			return err
		}
		table.SetHeader([]string{"Link ID", "Destination", "Status", "Dir", "RTT", "Uptime"})
		for _, l := range resp.Links {
			dir := "In"
			if l.Initiator {
				dir = "Out"
			}
			table.Append([]string{
				l.ID,
				l.Destination,
				l.Status,
				dir,
				seconds(l.RTT),
				seconds(l.Uptime),
			})
		}
		table.Render()

	case "getknowndestinations":
		var resp admin.GetKnownDestinationsResponse
		if err := json.Unmarshal(response, &resp); err != nil {
			return err
		}
		header := []string{"Destination", "Identity", "Last Seen"}
		if verbose {
			header = append(header, "App Data")
		}
		table.SetHeader(header)
		for _, k := range resp.Destinations {
			row := []string{k.Destination, k.Identity, unixTime(k.LastSeen)}
			if verbose {
				row = append(row, k.AppData)
			}
			table.Append(row)
		}
		table.Render()

	case "getmulticastinterfaces":
		var resp admin.GetMulticastInterfacesResponse
		if err := json.Unmarshal(response, &resp); err != nil {
			return err
		}
		table.SetHeader([]string{"Interface", "Group", "Peers"})
		for _, i := range resp.Interfaces {
			table.Append([]string{i.Name, i.Group, fmt.Sprintf("%d", i.Peers)})
		}
		table.Render()

	case "getmulticastpeers":
		var resp admin.GetMulticastPeersResponse
		if err := json.Unmarshal(response, &resp); err != nil {
			return err
		}
		table.SetHeader([]string{"Address", "Interface", "Last Heard"})
		for _, p := range resp.Peers {
			table.Append([]string{p.Address, p.Interface, seconds(p.LastHeard) + " ago"})
		}
		table.Render()

	case "droppath", "dropallvia", "dropannouncequeues", "requestpath", "saveknowndestinations":
		var resp map[string]interface{}
		if err := json.Unmarshal(response, &resp); err != nil {
			return err
		}
		keys := make([]string, 0, len(resp))
		for k := range resp {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			table.Append([]string{k + ":", fmt.Sprintf("%v", resp[k])})
		}
		table.Render()

	default:
		fmt.Fprintln(w, string(response))
	}
	return nil
}
