package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"AgentPay-Chain/sdk/go/agentpay"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/payments", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			_ = json.NewEncoder(w).Encode(agentpay.PaymentResult{
				Success: true,
				TxRef:   "0xdemo",
				Amount:  5_000_000,
				Scheme:  "exact",
			})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/schedules", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(agentpay.ScheduleSummary{ID: "sched-demo"})
		case http.MethodDelete:
			_ = json.NewEncoder(w).Encode(agentpay.ScheduleSummary{ID: "sched-demo"})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := agentpay.NewClient(srv.URL, srv.Client())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := client.ExecutePayment(ctx, agentpay.PaymentRequest{
		Resource: "/premium/data",
		Amount:   5_000_000,
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("payment settled tx=%s scheme=%s\n", result.TxRef, result.Scheme)

	summary, err := client.SchedulePayment(ctx, agentpay.ScheduleRequest{
		Resource: "/premium/data",
		Amount:   5_000_000,
		DelaySec: 3600,
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("scheduled payment %s\n", summary.ID)

	if err := client.CancelSchedule(ctx, summary.ID); err != nil {
		panic(err)
	}
	fmt.Printf("cancelled payment %s\n", summary.ID)
}
