package main

import (
	"context"
	"log"
)

// broadcastWorker receives snapshots and fans out to the downstream workers.
// Sends are non-blocking: a slow consumer drops updates rather than stalling
// the pulse worker.
func broadcastWorker(ctx context.Context, inputChan <-chan PulseSnapshot, outputChans []chan<- PulseSnapshot) {
	for {
		select {
		case snap := <-inputChan:
			for i, ch := range outputChans {
				select {
				case ch <- snap:
				case <-ctx.Done():
					return
				default:
					log.Printf("Warning: downstream worker %d channel full, dropping snapshot\n", i)
				}
			}

		case <-ctx.Done():
			return
		}
	}
}
