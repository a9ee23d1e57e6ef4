// Command peer is the murmur chat client: it connects to a broker,
// announces an identity, and exchanges end-to-end encrypted messages
// with other connected peers through a small line-oriented REPL.
//
// The original design's terminal UI (`tui`/`termion`) is out of scope;
// this REPL covers the same flow — identity entry, chat list
// navigation, chat window — through plain stdin prompts and slash
// commands instead of a rendered TUI.
//
// Configuration Loading Strategy:
// 1. Command line argument: path to a YAML config file
// 2. MURMUR_CONFIG_PATH environment variable, if it names an existing file
// 3. ./config/peer.yaml, if present
// 4. config/peer.yaml next to the binary, if present
// 5. Hardcoded default: dial 127.0.0.1:1337, prompt for identity
//
// Called by: operator
// Calls: internal/config, internal/session, internal/crypto
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/quietwire/murmur/internal/crypto"
	"github.com/quietwire/murmur/internal/envelope"
	"github.com/quietwire/murmur/internal/session"

	"github.com/quietwire/murmur/internal/config"
	"github.com/quietwire/murmur/public/runtime"
)

func main() {
	logFile, err := runtime.OpenLogFile("client_logs.log")
	if err != nil {
		log.Fatalf("Peer: %v", err)
	}
	defer logFile.Close()

	var configFlag *string
	if len(os.Args) >= 2 {
		f := os.Args[1]
		configFlag = &f
	}

	cfg, source, err := config.Load("peer", configFlag)
	if err != nil {
		log.Fatalf("Peer: failed to load config: %v", err)
	}
	if source != "" {
		log.Printf("Peer: using configuration from %s", source)
	}

	logger := runtime.NewLogger("Peer", cfg.Peer.Debug)

	stdin := bufio.NewScanner(os.Stdin)

	identity := cfg.Peer.Identity
	if identity == "" {
		identity = prompt(stdin, "Enter your identity: ")
	}
	if len(identity) > envelope.MaxIdentityLen {
		identity = identity[:envelope.MaxIdentityLen]
		logger.LogInfo("identity truncated to %d bytes: %s", envelope.MaxIdentityLen, identity)
	}

	brokerAddr := cfg.Peer.BrokerAddress
	if brokerAddr == "" {
		brokerAddr = prompt(stdin, fmt.Sprintf("Broker address [%s]: ", config.DefaultAddress))
		if brokerAddr == "" {
			brokerAddr = config.DefaultAddress
		}
	}

	self, err := crypto.LocalIdentity()
	if err != nil {
		log.Fatalf("Peer: failed to generate local identity: %v", err)
	}

	conn, err := session.Dial(brokerAddr)
	if err != nil {
		log.Fatalf("Peer: failed to connect to broker at %s: %v", brokerAddr, err)
	}
	defer conn.Close()

	conn.Send(envelope.NewConnection(identity, self.PublicKey()))
	logger.LogInfo("connected to %s as %q", brokerAddr, identity)

	dir := session.NewDirectory(self)

	go func() {
		for err := range conn.Errs() {
			logger.LogError("transport error: %v", err)
		}
	}()

	go receiveLoop(conn, dir, logger)

	// The REPL's main goroutine blocks on stdin, so SIGINT/SIGTERM is
	// handled off to the side: it tears the connection down and exits
	// the process directly rather than trying to unblock stdin.Scan().
	ctx, cancel := runtime.WithSignals(context.Background())
	defer cancel()
	go func() {
		runtime.RunUntilSignal(ctx, logger, "Peer")
		conn.Send(envelope.NewDisconnect(identity))
		conn.Close()
		os.Exit(0)
	}()

	runREPL(stdin, conn, dir, identity, logger)
}

// receiveLoop drains the broker's inbound envelopes and applies them
// to the local chat directory. This is the cooperative inbound half
// of the pair of in-process queues; the outbound half is runREPL
// below.
func receiveLoop(conn *session.Conn, dir *session.Directory, logger *runtime.Logger) {
	for env := range conn.Inbox() {
		switch env.Kind {
		case envelope.KindPeerList:
			for _, p := range env.Peers {
				if err := dir.Observe(p.ID, p.PublicKey); err != nil {
					logger.LogError("observing %s: %v", p.ID, err)
				}
			}
			logger.LogInfo("peer list: %d peer(s) known", len(env.Peers))
		case envelope.KindNewConnection:
			if err := dir.Observe(env.ID, env.PublicKey); err != nil {
				logger.LogError("observing %s: %v", env.ID, err)
				continue
			}
			logger.LogInfo("%s joined (or rekeyed)", env.ID)
		case envelope.KindDisconnect:
			dir.Forget(env.ID)
			logger.LogInfo("%s disconnected", env.ID)
		case envelope.KindMessage:
			text, err := dir.Decrypt(env.From, env.Ciphertext)
			if err != nil {
				logger.LogError("decrypting message from %s: %v", env.From, err)
				continue
			}
			fmt.Printf("\n[%s] %s\n", env.From, text)
		}
	}
}

// runREPL is the outbound half: a slash-command shell over the chat
// list plus a per-peer chat window, replacing the original tui/termion
// navigation with plain text prompts. The TUI rendering itself is out
// of scope, not the underlying identity-entry/chat-list/chat-window
// flow it drove.
func runREPL(stdin *bufio.Scanner, conn *session.Conn, dir *session.Directory, selfID string, logger *runtime.Logger) {
	fmt.Println("Commands: /list, /chat <id>, /quit. Anything else is sent to the selected chat.")

	var draft session.Draft
	for {
		peer, hasPeer := dir.Selected()
		prefix := "> "
		if hasPeer {
			prefix = fmt.Sprintf("[%s]> ", peer)
		}
		fmt.Print(prefix)
		if !stdin.Scan() {
			return
		}
		line := stdin.Text()

		switch {
		case line == "/quit":
			conn.Send(envelope.NewDisconnect(selfID))
			return
		case line == "/list":
			for _, p := range dir.Peers() {
				fmt.Println(" -", p)
			}
			continue
		case strings.HasPrefix(line, "/chat "):
			target := strings.TrimSpace(strings.TrimPrefix(line, "/chat "))
			if err := dir.Select(target); err != nil {
				fmt.Println("error:", err)
			}
			continue
		}

		if !hasPeer {
			fmt.Println("select a chat first with /chat <id>")
			continue
		}

		draft.Reset()
		if ok := draft.Append(line); !ok {
			fmt.Printf("message too long (max %d bytes), not sent\n", session.MaxDraftLen)
			continue
		}

		ciphertext, err := dir.Encrypt(peer, []byte(draft.String()))
		if err != nil {
			logger.LogError("encrypting message to %s: %v", peer, err)
			continue
		}
		conn.Send(envelope.NewMessage(selfID, peer, ciphertext))
		draft.Reset()
	}
}

func prompt(stdin *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !stdin.Scan() {
		return ""
	}
	return strings.TrimSpace(stdin.Text())
}
