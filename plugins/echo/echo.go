// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

// Package echo is the example plugin pack. The front end broadcasts a
// message; every back end answers with its host, how many targets it
// serves there, and the message.
//
// The frontend and backend directories build the pack's two objects:
//
//	go build -buildmode=plugin -o $PREFIX/lib/echo/PluginFrontEnd.so ./plugins/echo/frontend
//	go build -buildmode=plugin -o $PREFIX/lib/echo/PluginBackEnd.so ./plugins/echo/backend
package echo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/lanl/gladius-sub000/lib/overlay"
	"github.com/lanl/gladius-sub000/lib/pluginabi"
	"github.com/lanl/gladius-sub000/lib/protocol"
)

// Name is the pack directory name.
const Name = "echo"

// Version is reported in the plugin's Info.
const Version = "1.0.0"

// TagEcho carries both the request and the replies.
var TagEcho = protocol.PluginTag(0)

// DefaultMessage is sent when the tool is given no arguments.
const DefaultMessage = "hello"

// Request is the front end's broadcast.
type Request struct {
	Message string `cbor:"message"`
}

// Reply is one back end's answer.
type Reply struct {
	Rank    overlay.Rank `cbor:"rank"`
	Host    string       `cbor:"host"`
	Targets int          `cbor:"targets"`
	Message string       `cbor:"message"`
}

// FrontEnd sends one request and prints a line per reply, in rank
// order.
type FrontEnd struct {
	// Output defaults to standard output.
	Output io.Writer

	mu      sync.Mutex
	replies []Reply
}

// Replies returns the replies of the last run.
func (f *FrontEnd) Replies() []Reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Reply(nil), f.replies...)
}

// PluginMain implements pluginabi.Plugin.
func (f *FrontEnd) PluginMain(ctx context.Context, args pluginabi.Args) error {
	message := strings.Join(args.ApplicationArgs, " ")
	if message == "" {
		message = DefaultMessage
	}
	stream := args.ProtocolStream
	if err := stream.Send(TagEcho, Request{Message: message}); err != nil {
		return err
	}
	if err := stream.Flush(); err != nil {
		return err
	}

	expected := args.Network.ExpectedBackEndCount()
	replies := make([]Reply, 0, expected)
	for len(replies) < expected {
		packet, err := stream.Recv(ctx)
		if err != nil {
			return fmt.Errorf("%d of %d replies received: %w", len(replies), expected, err)
		}
		if packet.Tag != TagEcho {
			return fmt.Errorf("unexpected %s from back end %d", packet.Tag, packet.Source)
		}
		var reply Reply
		if err := packet.Unpack(&reply); err != nil {
			return err
		}
		replies = append(replies, reply)
	}
	sort.Slice(replies, func(i, j int) bool { return replies[i].Rank < replies[j].Rank })

	f.mu.Lock()
	f.replies = replies
	f.mu.Unlock()

	output := f.Output
	if output == nil {
		output = os.Stdout
	}
	for _, reply := range replies {
		if _, err := fmt.Fprintf(output, "%d %s targets=%d: %s\n", reply.Rank, reply.Host, reply.Targets, reply.Message); err != nil {
			return err
		}
	}
	args.Logger.Info("echo complete", "replies", len(replies))
	return nil
}

// BackEnd answers every request until the front end shuts the session
// down.
type BackEnd struct{}

// PluginMain implements pluginabi.Plugin.
func (BackEnd) PluginMain(ctx context.Context, args pluginabi.Args) error {
	stream := args.ProtocolStream
	host := ""
	if args.ProcessTable.Len() > 0 {
		host = args.ProcessTable.At(0).HostName
	}
	for {
		packet, err := stream.Recv(ctx)
		if errors.Is(err, overlay.ErrNetworkClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		switch packet.Tag {
		case protocol.Shutdown:
			return nil
		case TagEcho:
			var request Request
			if err := packet.Unpack(&request); err != nil {
				return err
			}
			reply := Reply{Rank: args.BackEnd.Rank(), Host: host, Targets: args.ProcessTable.Len(), Message: request.Message}
			if err := stream.Send(TagEcho, reply); err != nil {
				return err
			}
			if err := stream.Flush(); err != nil {
				return err
			}
		default:
			args.Logger.Debug("ignoring packet", "tag", packet.Tag, "source", packet.Source)
		}
	}
}

// FrontEndInfo is the front-end object's entry point.
func FrontEndInfo() *pluginabi.Info {
	return &pluginabi.Info{
		ABI:       pluginabi.ABIVersion,
		Name:      Name,
		Version:   Version,
		Construct: pluginabi.Singleton(func() (pluginabi.Plugin, error) { return &FrontEnd{}, nil }),
	}
}

// BackEndInfo is the back-end object's entry point.
func BackEndInfo() *pluginabi.Info {
	return &pluginabi.Info{
		ABI:       pluginabi.ABIVersion,
		Name:      Name,
		Version:   Version,
		Construct: pluginabi.Singleton(func() (pluginabi.Plugin, error) { return BackEnd{}, nil }),
	}
}
