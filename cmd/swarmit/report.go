package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"

	"github.com/openswarm-eu/swarmit/pkg/controller"
)

func runStatus(c *controller.Controller) {
	known := c.Command.Status()
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Device", "Status"})
	for addr, status := range known {
		table.Append([]string{addr.String(), status.String()})
	}
	table.Render()
}

func runStart(c *controller.Controller) {
	running := c.Command.Start()
	fmt.Printf("%d device(s) running\n", len(running))
}

func runStop(c *controller.Controller) {
	stopped := c.Command.Stop()
	fmt.Printf("%d device(s) back in the bootloader\n", len(stopped))
}

func runFlash(c *controller.Controller, path string) error {
	firmware, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading firmware: %w", err)
	}

	c.OTA.Progress = func(done, total int) {
		fmt.Printf("\rchunk %d/%d", done, total)
	}

	if err := c.OTA.StartOTA(firmware); err != nil {
		return fmt.Errorf("ota start: %w", err)
	}

	status, transferErr := c.OTA.Transfer()
	fmt.Println()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Device", "Chunks acked", "Hashes match"})
	for addr, t := range status {
		acked := 0
		for _, chunk := range t.Chunks {
			if chunk.Acked {
				acked++
			}
		}
		table.Append([]string{addr.String(), fmt.Sprintf("%d/%d", acked, len(t.Chunks)), fmt.Sprintf("%v", t.HashesMatch)})
	}
	table.Render()

	return transferErr
}
