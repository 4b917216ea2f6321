// Command modbus is a small CLI that exercises the Manager end to end:
// it activates a Manager, submits a one-time read against a TCP or RTU
// endpoint, prints the result, and deactivates.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/simpleiot/modbusmgr/endpoint"
	"github.com/simpleiot/modbusmgr/manager"
	"github.com/simpleiot/modbusmgr/request"
	"github.com/simpleiot/modbusmgr/task"
	"github.com/simpleiot/modbusmgr/values"
)

func usage() {
	fmt.Println("Usage:")
	flag.PrintDefaults()
	os.Exit(1)
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	flagTCP := flag.String("tcp", "", "host:port of a Modbus TCP endpoint")
	flagSerial := flag.String("serial", "", "serial port of a Modbus RTU endpoint")
	flagBaud := flag.Int("baud", 9600, "baud rate (RTU only)")
	flagUnit := flag.Int("unit", 1, "slave unit id")
	flagAddress := flag.Int("address", 0, "starting holding register address")
	flagCount := flag.Int("count", 1, "number of values of -type to read")
	flagScale := flag.Float64("scale", 1, "scale factor applied to the result")
	flagValueType := flag.String("type", "uint16", "uint16, int16, uint32, int32, float32 (append _swap for word-swapped)")

	flag.Parse()

	if *flagTCP == "" && *flagSerial == "" {
		usage()
	}

	vt, err := parseValueType(*flagValueType)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid -type")
	}

	var key endpoint.Key
	if *flagTCP != "" {
		host, port, err := splitHostPort(*flagTCP)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid -tcp")
		}
		key = endpoint.NewTCPKey(host, port, byte(*flagUnit))
	} else {
		key = endpoint.NewRTUKey(*flagSerial, *flagBaud, byte(*flagUnit))
	}

	mgr := manager.New(manager.Config{
		DispatchWorkers: 2,
		CallbackWorkers: 2,
		Log:             log,
	})

	if err := mgr.Activate(); err != nil {
		log.Fatal().Err(err).Msg("activate")
	}
	defer mgr.Deactivate()

	count := *flagCount * vt.RegisterCount()

	done := make(chan struct{})
	cb := task.CallbackFuncs{
		Read: func(result request.ReadResult) {
			defer close(done)
			printResult(vt, result.Registers, *flagScale, *flagAddress)
		},
		Error: func(err error) {
			defer close(done)
			fmt.Fprintln(os.Stderr, "error:", err)
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = mgr.SubmitOneTimeRead(ctx, key, request.ReadRequest{
		Kind:    request.KindHoldingRegister,
		Address: uint16(*flagAddress),
		Count:   uint16(count),
	}, cb)
	if err != nil {
		log.Fatal().Err(err).Msg("submit read")
	}

	select {
	case <-done:
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "timed out waiting for response")
		os.Exit(1)
	}
}

func printResult(vt values.Type, regs []uint16, scale float64, baseAddress int) {
	step := vt.RegisterCount()
	for i := 0; i*step < len(regs); i++ {
		v, err := values.ExtractFromRegisters(vt, regs[i*step:], 0, scale)
		if err != nil {
			fmt.Fprintln(os.Stderr, "decode error:", err)
			continue
		}
		fmt.Printf("register %d: %s\n", baseAddress+i*step, v.String())
	}
}

func parseValueType(s string) (values.Type, error) {
	switch s {
	case "int8":
		return values.TypeInt8, nil
	case "uint8":
		return values.TypeUint8, nil
	case "uint16":
		return values.TypeUint16, nil
	case "int16":
		return values.TypeInt16, nil
	case "uint32":
		return values.TypeUint32, nil
	case "uint32_swap":
		return values.TypeUint32Swap, nil
	case "int32":
		return values.TypeInt32, nil
	case "int32_swap":
		return values.TypeInt32Swap, nil
	case "uint64":
		return values.TypeUint64, nil
	case "uint64_swap":
		return values.TypeUint64Swap, nil
	case "int64":
		return values.TypeInt64, nil
	case "int64_swap":
		return values.TypeInt64Swap, nil
	case "float32":
		return values.TypeFloat32, nil
	case "float32_swap":
		return values.TypeFloat32Swap, nil
	case "float64":
		return values.TypeFloat64, nil
	case "float64_swap":
		return values.TypeFloat64Swap, nil
	default:
		return 0, fmt.Errorf("unknown value type %q", s)
	}
}

func splitHostPort(s string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return "", 0, fmt.Errorf("expected host:port, got %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in %q: %w", s, err)
	}
	return host, port, nil
}
