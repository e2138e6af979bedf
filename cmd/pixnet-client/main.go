// Command pixnet-client connects to a pixnetd server, prints each received
// page's metadata and category table, and optionally fires a single
// navigation event. It is a protocol-level demonstrator; rendering frames
// to a screen is a collaborator concern left to the canvas/UI layer.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/pixnet/pixnetd/internal/pixclient"
	"github.com/pixnet/pixnetd/internal/wire"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:7621", "server address")
	userAgent := flag.String("user-agent", "pixnet-client/1.0", "handshake user agent")
	navigate := flag.String("navigate", "", "send a nav_<target> event after the first frame, then exit")
	flag.Parse()

	client, err := pixclient.Connect(*addr, *userAgent, 5*time.Second)
	if err != nil {
		log.Fatalf("pixnet-client: %v", err)
	}

	select {
	case frame, ok := <-client.Frames:
		if !ok {
			log.Fatalf("pixnet-client: connection closed before first frame")
		}
		printFrame(frame)
	case err := <-client.Errors:
		log.Fatalf("pixnet-client: %v", err)
	}

	if *navigate != "" {
		if err := client.SendEvent(0, 1, "nav_"+*navigate, 0, 0, nil); err != nil {
			log.Fatalf("pixnet-client: navigate: %v", err)
		}
		select {
		case frame, ok := <-client.Frames:
			if ok {
				printFrame(frame)
			}
		case err := <-client.Errors:
			log.Printf("pixnet-client: %v", err)
		case <-time.After(5 * time.Second):
			log.Printf("pixnet-client: timed out waiting for navigation response")
		}
	}

	client.Disconnect(0, "client exit")
}

func printFrame(f *wire.Frame) {
	fmt.Printf("frame seq=%d %dx%d format=%d categories=%d checksum=%08x\n",
		f.Sequence, f.Width, f.Height, f.Format, len(f.Categories), f.Checksum)
	for _, c := range f.Categories {
		fmt.Printf("  category id=%d name=%q behavior=%d priority=%d\n", c.ID, c.Name, c.BehaviorID, c.Priority)
	}
}
