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

	fmt.Println("Beginning high-level lock operation...")

	_, err := ordlockclient.WithLock(client, []string{"app-lock"}, ordlockclient.LockOptions{
		TTL:            2 * time.Second,
		LockingTimeout: 5 * time.Second,
		Extends:        ordlockclient.FixedExtends(10),
	}, func(extend ordlockclient.ExtendFunc) (struct{}, error) {
		fmt.Println("Running protected zone with lock shield")
		fmt.Println("Handling main business code...")

		// Mock task that needs exclusive access and outlives one TTL
		for i := 1; i <= 5; i++ {
			fmt.Printf("Phase %d/5 working...\n", i)
			time.Sleep(time.Millisecond * 700)
		}

		fmt.Println("Business code finished!")
		return struct{}{}, nil
	})

	if err != nil {
		fmt.Printf("Lock action failed: %v\n", err)
		return
	}

	fmt.Println("Lock action finished!")
}
