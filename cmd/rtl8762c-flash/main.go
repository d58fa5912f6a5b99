// Command rtl8762c-flash drives an RTL8762C module over UART: it
// enters FLASH mode, uploads the bundled stage-0 helper, and issues
// one of a handful of flash operations before releasing the module
// back into RUN.
package main

import (
	"archive/zip"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/bee2mp/rtl8762c-flash/pkg/firmware"
	"github.com/bee2mp/rtl8762c-flash/pkg/flasher"
	"github.com/bee2mp/rtl8762c-flash/pkg/protocol"
	"github.com/bee2mp/rtl8762c-flash/pkg/transport"
)

// Configuration flags
var (
	portName     = flag.String("port", "/dev/ttyUSB0", "Serial port device path")
	baudRate     = flag.Uint("baud", flasher.DefaultBaud, "Initial serial baud rate")
	retries      = flag.Int("retries", 3, "Number of whole-session retries on core error")
	firmwarePath = flag.String("firmware-archive", "", "Path to the vendor tool archive bundling stage-0")
	firmwareName = flag.String("firmware-entry", firmware.DefaultEntry, "Entry name of the stage-0 image inside the archive")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	args := flag.Args()
	if len(args) == 0 {
		log.Fatalf("usage: rtl8762c-flash [flags] <mac|read|erase|erase-region|write|verify|set-baud> [args...]")
	}
	cmd, cmdArgs := args[0], args[1:]

	if err := runWithRetries(cmd, cmdArgs); err != nil {
		log.Fatalf("rtl8762c-flash: %v", err)
	}
}

// runWithRetries opens a fresh transport and session for each attempt
// and hands it to dispatch; on any core error it logs, decrements the
// retry budget, and tries again with a brand-new session (SPEC_FULL.md
// §4.5 / the driver dispatcher section).
func runWithRetries(cmd string, cmdArgs []string) error {
	var lastErr error
	for attempt := 0; attempt <= *retries; attempt++ {
		if attempt > 0 {
			log.Printf("rtl8762c-flash: retrying %q (attempt %d/%d) after: %v", cmd, attempt, *retries, lastErr)
		}
		if err := attemptOnce(cmd, cmdArgs); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries: %w", *retries, lastErr)
}

func attemptOnce(cmd string, cmdArgs []string) (err error) {
	t, err := transport.Open(*portName)
	if err != nil {
		return fmt.Errorf("open port %s: %w", *portName, err)
	}
	if err := t.SetBaud(uint32(*baudRate)); err != nil {
		t.Close()
		return fmt.Errorf("set initial baud: %w", err)
	}

	fw0, closeFW, err := openStage0()
	if err != nil {
		t.Close()
		return err
	}
	defer closeFW()

	session, err := flasher.Enter(t, fw0)
	if err != nil {
		t.Close()
		return fmt.Errorf("enter FLASH: %w", err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil && err == nil {
			log.Printf("rtl8762c-flash: session close: %v", closeErr)
		}
	}()

	log.Printf("rtl8762c-flash: flash size = %d KiB", session.FlashSize()/1024)
	return dispatch(session, cmd, cmdArgs)
}

func openStage0() (io.ReadCloser, func(), error) {
	if *firmwarePath == "" {
		return nil, nil, errors.New("-firmware-archive is required")
	}
	zr, err := zip.OpenReader(*firmwarePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open firmware archive %s: %w", *firmwarePath, err)
	}
	fw0, err := firmware.Open(&zr.Reader, *firmwareName)
	if err != nil {
		zr.Close()
		return nil, nil, err
	}
	return fw0, func() {
		fw0.Close()
		zr.Close()
	}, nil
}

func dispatch(s *flasher.Session, cmd string, args []string) error {
	switch cmd {
	case "mac":
		mac, err := s.ReadMAC()
		if err != nil {
			return err
		}
		fmt.Println(hex.EncodeToString(mac[:]))
		return nil

	case "read":
		addr, size, err := twoUints(args, "read <addr> <size>")
		if err != nil {
			return err
		}
		data, err := s.ReadFlash(uint32(addr), uint32(size))
		if err != nil {
			return err
		}
		fmt.Println(hex.EncodeToString(data))
		return nil

	case "erase":
		return s.EraseFlash()

	case "erase-region":
		addr, size, err := twoUints(args, "erase-region <addr> <size>")
		if err != nil {
			return err
		}
		return s.EraseRegion(uint32(addr), uint32(size))

	case "write":
		if len(args) != 2 {
			return errors.New("usage: write <addr> <file>")
		}
		addr, err := parseUint(args[0])
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[1], err)
		}
		return s.WriteFlash(uint32(addr), data)

	case "verify":
		if len(args) != 2 {
			return errors.New("usage: verify <addr> <file>")
		}
		addr, err := parseUint(args[0])
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[1], err)
		}
		return s.VerifyFlash(uint32(addr), data)

	case "set-baud":
		if len(args) != 1 {
			return errors.New("usage: set-baud <baud>")
		}
		baud, err := parseUint(args[0])
		if err != nil {
			return err
		}
		return s.SetBaud(uint32(baud))

	default:
		return protocol.NewArgumentError(fmt.Sprintf("unknown subcommand %q", cmd))
	}
}

func twoUints(args []string, usage string) (uint64, uint64, error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("usage: %s", usage)
	}
	a, err := parseUint(args[0])
	if err != nil {
		return 0, 0, err
	}
	b, err := parseUint(args[1])
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(s, 0, 32)
}
