// LucidFlow CLI - Command line client for a LucidFlow server
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/eldtechnologies/lucidflow/clients/go/lucidflow"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	client := lucidflow.NewClient(os.Getenv("LUCIDFLOW_URL"), os.Getenv("LUCIDFLOW_SESSION"))
	client.ClientID = os.Getenv("LUCIDFLOW_CLIENT")
	client.ModelKey = os.Getenv("LUCIDFLOW_MODEL_KEY")
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health()
		exitOnError(err)
		printJSON(resp)

	case "stats":
		resp, err := client.Stats()
		exitOnError(err)
		fmt.Printf("%d nodes (%d live), %d edges, %d messages\n",
			resp.TotalNodes, resp.LiveNodes, resp.TotalEdges, resp.TotalMessages)
		if resp.LastActivity != "" {
			fmt.Printf("Last activity: %s\n", resp.LastActivity)
		}

	case "nodes":
		nodes, err := client.Nodes()
		exitOnError(err)
		for _, n := range nodes {
			live := ""
			if n.Data.Agent.Watch && n.Data.Agent.Source != "" {
				live = " [" + n.Data.Agent.SubType + ": " + n.Data.Agent.Source + "]"
			}
			fmt.Printf("  %s  %s (%d msgs)%s\n", n.ID, n.Data.Label, len(n.Data.ChatData), live)
		}

	case "add-node":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: lucidflow add-node <label> [subtype source]")
			os.Exit(1)
		}
		node := lucidflow.Node{Data: lucidflow.NodeData{Label: os.Args[2]}}
		if len(os.Args) > 4 {
			node.Data.Agent = lucidflow.Agent{SubType: os.Args[3], Watch: true, Source: os.Args[4]}
		}
		resp, err := client.AddNode(node)
		exitOnError(err)
		fmt.Printf("Added: %s\n", resp.ID)

	case "say":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: lucidflow say <node_id> <text> [sender]")
			os.Exit(1)
		}
		sender := "user"
		if len(os.Args) > 4 {
			sender = os.Args[4]
		}
		resp, err := client.AppendMessage(os.Args[2], sender, os.Args[3])
		exitOnError(err)
		fmt.Printf("Appended: %s\n", resp.ID)

	case "connect":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: lucidflow connect <source_id> <target_id>")
			os.Exit(1)
		}
		resp, err := client.Connect(os.Args[2], os.Args[3])
		exitOnError(err)
		fmt.Printf("Connected: %s\n", resp.ID)

	case "upstream":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: lucidflow upstream <node_id>")
			os.Exit(1)
		}
		ids, err := client.Upstream(os.Args[2], false)
		exitOnError(err)
		for _, id := range ids {
			fmt.Println(id)
		}

	case "context":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: lucidflow context <node_id> [turns|merged]")
			os.Exit(1)
		}
		mode := ""
		if len(os.Args) > 3 {
			mode = os.Args[3]
		}
		resp, err := client.BuildContext(os.Args[2], "", mode)
		exitOnError(err)
		fmt.Printf("system: %s\n", resp.SystemInstructions)
		for i, t := range resp.Turns {
			fmt.Printf("[%d] %s: %s\n", i, t.Role, t.Text())
		}

	case "chat":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: lucidflow chat <node_id> <text> [record]")
			os.Exit(1)
		}
		record := false
		if len(os.Args) > 4 {
			record, _ = strconv.ParseBool(os.Args[4])
		}
		reply, err := client.Send(os.Args[2], os.Args[3], record)
		exitOnError(err)
		fmt.Println(reply)

	case "save":
		exitOnError(client.Save())
		fmt.Println("Saved")

	case "load":
		resp, err := client.Load()
		exitOnError(err)
		if !resp.Found {
			fmt.Println("Nothing stored for this session")
			return
		}
		fmt.Printf("Loaded %d nodes, %d edges\n", resp.Nodes, resp.Edges)

	case "set-key":
		if len(os.Args) < 3 || client.ClientID == "" {
			fmt.Fprintln(os.Stderr, "Usage: LUCIDFLOW_CLIENT=<id> lucidflow set-key <api_key>")
			os.Exit(1)
		}
		exitOnError(client.SetCredential(os.Args[2]))
		fmt.Println("Stored")

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`LucidFlow CLI - context graphs for model conversations

Usage: lucidflow <command> [options]

Commands:
  stats                          Show session counts
  nodes                          List nodes
  add-node <label> [subtype src] Add a node, optionally live from src
  say <node> <text> [sender]     Append a message to a node
  connect <source> <target>      Feed source into target
  upstream <node>                List nodes feeding a node
  context <node> [mode]          Show the assembled context
  chat <node> <text> [record]    Ask the model with the node's context
  save                           Persist the session now
  load                           Reload the session from storage
  set-key <api_key>              Store a model key for LUCIDFLOW_CLIENT
  health                         Check server health

Environment:
  LUCIDFLOW_URL        Server URL (default: http://localhost:8080)
  LUCIDFLOW_SESSION    Session key (default: lucid-flow-session)
  LUCIDFLOW_CLIENT     Client id for stored model keys
  LUCIDFLOW_MODEL_KEY  Model key sent with each request`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
