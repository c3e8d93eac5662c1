package main

import (
	"encoding/hex"
	"fmt"

	"pulsera/pkg/protocol"
	"pulsera/pkg/transport"
)

type SendCmd struct {
	State  int    `help:"1 = active (walk), 2 = inactive" required:""`
	Angle  int    `help:"mounting angle in degrees: 0, 90, 180 or 270" required:""`
	Format string `help:"payload format" enum:"compact,legacy,text" default:"compact"`
	Addr   string `help:"destination host:port" default:"127.0.0.1:4210"`
	DryRun bool   `help:"print the payload as hex instead of sending it" name:"dry-run"`
}

func (c *SendCmd) Run(rt *runtime) error {
	r, err := protocol.ReportFromInts(c.State, c.Angle)
	if err != nil {
		return err
	}
	kind, err := protocol.KindForFormat(c.Format)
	if err != nil {
		return err
	}
	payload, err := protocol.EncodePayload(kind, r)
	if err != nil {
		return err
	}

	if c.DryRun {
		fmt.Fprintln(rt.stdout, hex.EncodeToString(payload))
		return nil
	}

	tx, err := transport.DialUDP(c.Addr)
	if err != nil {
		return err
	}
	defer tx.Close()
	if err := tx.Send(payload); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	fmt.Fprintf(rt.stdout, "sent %s to %s (%s, %d bytes)\n", r, c.Addr, c.Format, len(payload))
	return nil
}
