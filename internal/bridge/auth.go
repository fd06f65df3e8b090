package bridge

import (
	"context"
	"fmt"
	"os"
	"time"

	qrterminal "github.com/mdp/qrterminal/v3"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/local/waclaw/internal/config"
)

// Pair runs the one-time QR pairing flow, printing the code to stdout
// and holding the connection long enough for the initial device sync.
func Pair(ctx context.Context, cfg config.Settings, logger zerolog.Logger) error {
	client, err := newClient(ctx, cfg, NewQuietLogger(logger))
	if err != nil {
		return err
	}

	if client.Store.ID != nil {
		fmt.Printf("Already authenticated as %s\n", client.Store.ID.User)
		fmt.Println("To re-authenticate, delete the auth directory and run auth again.")
		return nil
	}

	// Listen for the Connected event that fires after the post-pairing
	// 515 reconnect completes.
	connected := make(chan struct{}, 1)
	client.AddEventHandler(func(evt interface{}) {
		if _, ok := evt.(*events.Connected); ok {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
	})

	qrChan, _ := client.GetQRChannel(ctx)

	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect to whatsapp: %w", err)
	}
	defer client.Disconnect()

	fmt.Println("Scan the QR code below with WhatsApp on your phone:")
	fmt.Println("(Open WhatsApp > Settings > Linked Devices > Link a Device)")
	fmt.Println()

	for evt := range qrChan {
		switch evt.Event {
		case "code":
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
			fmt.Println()
		case "success":
			fmt.Println("Pairing successful, finishing setup...")
		case "timeout":
			return fmt.Errorf("QR code timed out, please try again")
		}
	}

	// Wait for the post-pairing reconnection, then hold the connection
	// so WhatsApp can complete the initial device sync.
	select {
	case <-connected:
	case <-time.After(30 * time.Second):
		return fmt.Errorf("timed out waiting for connection after pairing")
	case <-ctx.Done():
		return ctx.Err()
	}

	fmt.Println("Syncing with phone...")
	time.Sleep(15 * time.Second)

	fmt.Println("Successfully authenticated!")
	if client.Store.ID != nil {
		fmt.Printf("Logged in as: %s\n", client.Store.ID.User)
	}
	return nil
}

// PairedDevice reports the JID of the paired device, if any.
func PairedDevice(ctx context.Context, cfg config.Settings, logger zerolog.Logger) (*types.JID, error) {
	client, err := newClient(ctx, cfg, NewQuietLogger(logger))
	if err != nil {
		return nil, err
	}
	return client.Store.ID, nil
}
