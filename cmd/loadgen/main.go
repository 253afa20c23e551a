package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

// loadgen posts synthetic order events to the ingestion endpoint. It is a
// development tool; the pipeline itself never depends on it.

type orderItem struct {
	SKU   string  `json:"sku"`
	Name  string  `json:"name"`
	Qty   int     `json:"qty"`
	Price float64 `json:"price"`
}

func orderPayload() map[string]interface{} {
	numItems := rand.Intn(5) + 1
	items := make([]orderItem, 0, numItems)
	total := 0.0

	for i := 0; i < numItems; i++ {
		item := orderItem{
			SKU:   gofakeit.Regex(`prod-[a-z]{4}-[0-9]{2}`),
			Name:  gofakeit.ProductName(),
			Qty:   rand.Intn(3) + 1,
			Price: gofakeit.Price(10, 2000),
		}
		items = append(items, item)
		total += float64(item.Qty) * item.Price
	}

	return map[string]interface{}{
		"orderId":   fmt.Sprintf("ORD-%d-%04d", time.Now().Year(), rand.Intn(10000)),
		"createdAt": time.Now().Unix(),
		"customer": map[string]interface{}{
			"id":    fmt.Sprintf("c_%05d", rand.Intn(100000)),
			"tier":  gofakeit.RandomString([]string{"bronze", "silver", "gold", "platinum"}),
			"email": gofakeit.Email(),
		},
		"items":       items,
		"totalAmount": total,
		"currency":    "EUR",
		"shippingAddress": map[string]interface{}{
			"city":    gofakeit.City(),
			"zip":     gofakeit.Zip(),
			"country": gofakeit.CountryAbr(),
		},
	}
}

func main() {
	url := flag.String("url", "http://localhost:8080/events", "ingestion endpoint")
	count := flag.Int("count", 100, "number of events to send")
	delay := flag.Duration("delay", 500*time.Millisecond, "delay between events")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	log.Printf("Starting load generation: %d events to %s", *count, *url)

	success := 0
	for i := 0; i < *count; i++ {
		body, err := json.Marshal(map[string]interface{}{
			"eventType": "order.placed",
			"source":    "loadgen",
			"payload":   orderPayload(),
		})
		if err != nil {
			log.Fatalf("Failed to marshal event: %v", err)
		}

		resp, err := client.Post(*url, "application/json", bytes.NewReader(body))
		if err != nil {
			log.Printf("Request failed: %v", err)
		} else {
			if resp.StatusCode < 400 {
				success++
			} else {
				log.Printf("Ingestion returned %d", resp.StatusCode)
			}
			resp.Body.Close()
		}

		time.Sleep(*delay)
	}

	log.Printf("Load generation completed: %d/%d events accepted", success, *count)
}
