// Command fenrirctl is a minimal CLI client for exercising a running
// fenrird server, in the flag-driven style of the teacher's original
// client.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"

	"github.com/google/uuid"

	"fenrir/internal/common"
	fenrirNet "fenrir/internal/net"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9090", "address of the fenrird server")
	owner := flag.String("owner", "", "owner username (required)")
	action := flag.String("action", "place", "action: place | cancel | modify | snapshot")

	sideStr := flag.String("side", "buy", "order side: buy | sell")
	typeStr := flag.String("type", "limit", "order type: limit | postonly | ioc | fok | gtd | iceberg | reserve | marketlimit | pegged | trailing | stop")
	price := flag.Int64("price", 0, "limit price in ticks")
	qty := flag.Uint64("qty", 10, "order quantity")
	visible := flag.Uint64("visible", 0, "iceberg/reserve visible quantity (0 = full quantity)")

	orderID := flag.String("id", "", "order id (required for cancel/modify)")
	newQty := flag.Uint64("newqty", 0, "new quantity for modify")

	flag.Parse()

	if *owner == "" && *action != "snapshot" {
		fmt.Fprintln(os.Stderr, "Error: -owner is required.")
		flag.Usage()
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", *serverAddr, err)
	}
	defer conn.Close()

	go readReports(conn)

	switch strings.ToLower(*action) {
	case "place":
		msg := fenrirNet.NewOrderMessage{
			Side:       parseSide(*sideStr),
			OrderType:  parseType(*typeStr),
			Price:      *price,
			QtyTotal:   *qty,
			QtyVisible: *visible,
			Username:   *owner,
		}
		if _, err := conn.Write(msg.Serialize()); err != nil {
			log.Fatalf("failed to send order: %v", err)
		}
		fmt.Printf("-> sent %s %s %d@%d\n", *sideStr, *typeStr, *qty, *price)

	case "cancel":
		id, err := uuid.Parse(*orderID)
		if err != nil {
			log.Fatalf("invalid -id: %v", err)
		}
		msg := fenrirNet.CancelOrderMessage{OrderID: id}
		if _, err := conn.Write(msg.Serialize()); err != nil {
			log.Fatalf("failed to send cancel: %v", err)
		}
		fmt.Printf("-> sent cancel for %s\n", id)

	case "modify":
		id, err := uuid.Parse(*orderID)
		if err != nil {
			log.Fatalf("invalid -id: %v", err)
		}
		msg := fenrirNet.ModifyOrderMessage{OrderID: id, NewQty: *newQty}
		if _, err := conn.Write(msg.Serialize()); err != nil {
			log.Fatalf("failed to send modify: %v", err)
		}
		fmt.Printf("-> sent modify for %s -> %d\n", id, *newQty)

	case "snapshot":
		msg := fenrirNet.SnapshotRequestMessage{}
		if _, err := conn.Write(msg.Serialize()); err != nil {
			log.Fatalf("failed to request snapshot: %v", err)
		}
		fmt.Println("-> sent snapshot request")

	default:
		log.Fatalf("unknown action: %s", *action)
	}

	fmt.Println("Listening for reports... (Ctrl+C to exit)")
	select {}
}

func parseSide(s string) common.Side {
	if strings.EqualFold(s, "sell") {
		return common.Ask
	}
	return common.Bid
}

func parseType(s string) common.OrderType {
	switch strings.ToLower(s) {
	case "postonly":
		return common.PostOnly
	case "ioc":
		return common.IOC
	case "fok":
		return common.FOK
	case "gtd":
		return common.GTD
	case "iceberg":
		return common.Iceberg
	case "reserve":
		return common.Reserve
	case "marketlimit":
		return common.MarketToLimit
	case "pegged":
		return common.Pegged
	case "trailing":
		return common.TrailingStop
	case "stop":
		return common.Stop
	default:
		return common.Limit
	}
}

const reportFixedHeaderLen = 1 + 16 + 1 + 1 + 8 + 8 + 8 + 2

func readReports(conn net.Conn) {
	for {
		header := make([]byte, reportFixedHeaderLen)
		if _, err := io.ReadFull(conn, header); err != nil {
			if err != io.EOF {
				log.Printf("connection lost: %v", err)
			}
			return
		}

		kind := fenrirNet.ReportMessageType(header[0])
		id, _ := uuid.FromBytes(header[1:17])
		status := common.Status(header[17])
		reject := common.RejectReason(header[18])
		errLen := int(header[43])<<8 | int(header[44])

		var errStr string
		if errLen > 0 {
			body := make([]byte, errLen)
			if _, err := io.ReadFull(conn, body); err != nil {
				log.Printf("error reading report body: %v", err)
				return
			}
			errStr = string(body)
		}

		if kind == fenrirNet.ErrorReport {
			fmt.Printf("\n[ERROR] %s\n", errStr)
			continue
		}
		fmt.Printf("\n[%s] order=%s status=%s reject=%s\n", kindLabel(kind), id, status, reject)
	}
}

func kindLabel(k fenrirNet.ReportMessageType) string {
	switch k {
	case fenrirNet.ExecutionReport:
		return "EXEC"
	case fenrirNet.CancelReport:
		return "CANCEL"
	case fenrirNet.ModifyReport:
		return "MODIFY"
	case fenrirNet.SnapshotReport:
		return "SNAPSHOT"
	default:
		return "REPORT"
	}
}
