package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/xtr3m3nerd/DinoJam2/server/internal/client"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/descriptor"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/game"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/model"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/protocol"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/utils"
)

const dialTimeout = 5 * time.Second

func main() {
	var addr = flag.String("addr", "localhost:5000", "Server TCP address")
	var wsURL = flag.String("ws", "", "Server WebSocket URL, e.g. ws://localhost:8081/ws (overrides -addr)")
	var name = flag.String("name", "player", "Player name")
	var data = flag.String("data", "server/data", "Descriptor directory, must match the server's")
	var level = flag.String("log", "WARN", "Log level")
	flag.Parse()

	utils.SetLogLevel(*level)

	tables, layout, err := descriptor.Load(*data)
	if err != nil {
		log.Fatalf("Failed to load descriptors: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	var conn client.Conn
	if *wsURL != "" {
		conn, err = client.DialWebSocket(dialCtx, *wsURL, *name)
	} else {
		conn, err = client.DialTCP(dialCtx, *addr, *name)
	}
	cancel()
	if err != nil {
		log.Fatalf("Failed to connect to server: %v", err)
	}

	mirror := client.NewMirror(tables, layout)
	c := client.New(conn, mirror)
	mirror.Subscribe(func(e protocol.Event) {
		fmt.Printf("\n* %s\n", protocol.String(e))
	})

	go func() {
		err := c.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			fmt.Printf("\n%v\n", err)
		}
		stop()
	}()
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mirror.Drain()
			}
		}
	}()

	fmt.Println("Commands: build <tile> <unit>, move <from> <to>, end, board, quit")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			c.Close()
			fmt.Println("Goodbye!")
			return
		case line, ok := <-lines:
			if !ok || line == "quit" || line == "exit" {
				c.Close()
				fmt.Println("Goodbye!")
				return
			}
			if err := command(ctx, c, tables, line); err != nil {
				fmt.Printf("! %v\n", err)
			}
		}
	}
}

func command(ctx context.Context, c *client.Client, tables *model.Tables, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "build":
		args, err := uints(fields[1:], 2)
		if err != nil {
			return err
		}
		return c.BuildUnit(ctx, args[0], model.UnitKind(args[1]))
	case "move":
		args, err := uints(fields[1:], 2)
		if err != nil {
			return err
		}
		return c.MoveUnit(ctx, args[0], args[1])
	case "end":
		return c.EndTurn(ctx)
	case "board":
		printBoard(c.Mirror().State(), tables)
		return nil
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

func uints(args []string, n int) ([]uint32, error) {
	if len(args) != n {
		return nil, fmt.Errorf("expected %d arguments, got %d", n, len(args))
	}
	out := make([]uint32, n)
	for i, a := range args {
		v, err := strconv.ParseUint(a, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", a)
		}
		out[i] = uint32(v)
	}
	return out, nil
}

// printBoard draws units as V/D, buildings as v/d and walls as #.
func printBoard(s *game.GameState, tables *model.Tables) {
	fmt.Printf("stage %s, active player %d\n", s.Stage, s.ActivePlayer)
	for _, id := range s.PlayerIDs() {
		p := s.Players[id]
		fmt.Printf("  %d %s (%s) gold %d\n", id, p.Name, p.Faction, p.Gold)
	}
	for y := 0; y < model.BoardHeight; y++ {
		var row strings.Builder
		for x := 0; x < model.BoardWidth; x++ {
			tile := s.Board[y*model.BoardWidth+x]
			switch {
			case tile.Unit != nil:
				row.WriteByte(mark(tables.Unit(tile.Unit.Kind).Faction, 'V', 'D'))
			case tile.Building != nil:
				row.WriteByte(mark(tables.Building(tile.Building.Kind).Faction, 'v', 'd'))
			case tables.TerrainOf(tile.Terrain).Wall:
				row.WriteByte('#')
			default:
				row.WriteByte('.')
			}
		}
		fmt.Println("  " + row.String())
	}
}

func mark(f model.Faction, volcano, dinosaur byte) byte {
	if f == model.FactionVolcano {
		return volcano
	}
	return dinosaur
}
