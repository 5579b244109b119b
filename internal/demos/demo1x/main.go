package main

import (
	"fmt"
	"net"
	"time"

	"github.com/go-xlan/ordlock/internal/lockmanager"
	"github.com/go-xlan/ordlock/internal/logging"
	"github.com/go-xlan/ordlock/internal/ordserver"
	"github.com/go-xlan/ordlock/ordlockclient"
	"github.com/yyle88/rese"
)

func main() {
	// Start a lock server in-process to show the demo
	listener := rese.P1(net.Listen("tcp", "127.0.0.1:0"))
	defer rese.F0(listener.Close)

	logger := logging.NewNopLogger()
	srv := ordserver.New(lockmanager.New(logger), logger)
	go func() { _ = srv.Serve(listener) }()

	client := ordlockclient.Dial(listener.Addr().String(), ordlockclient.ReconnectConfig{}, logger)
	defer client.Close()

	<-client.Events() // wait for the initial connect

	lockID, err := client.Acquire([]string{"demo-lock"}, ordlockclient.LockOptions{
		TTL:            5 * time.Minute,
		LockingTimeout: 5 * time.Second,
	})
	if err != nil {
		panic(err)
	}

	fmt.Printf("Lock acquired! Id: %s\n", lockID)

	fmt.Println("Running protected zone...")
	time.Sleep(time.Second * 2) // Mock task

	if err := client.ReleaseLock(lockID); err != nil {
		fmt.Printf("Lock release failed: %v\n", err)
		return
	}
	fmt.Println("Lock released!")
}
