// Copyright (C) 2017 Librato, Inc. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/appoptics/appoptics-sdk-go/v1/sdk"
	"github.com/appoptics/appoptics-sdk-go/v1/sdk/sdkhttp"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type sample struct {
	description string
	run         func(ctx context.Context, s sdk.SDK) error
}

// samples is the registry of runnable samples by name.
var samples = map[string]sample{
	"database-sync":      {"SQL query traced with Start and End", databaseSync},
	"database-trace":     {"SQL query traced by wrapping a function", databaseTrace},
	"database-async":     {"SQL query running in a goroutine, traced with StartAsync", databaseAsync},
	"database-error":     {"failing SQL query, the error is recorded and returned", databaseError},
	"remote-call":        {"remote call from a client to a server linked by a string tag", remoteCall},
	"remote-call-db":     {"remote call whose server side queries a database", remoteCallWithDatabase},
	"messaging":          {"producer and consumer linked by a byte tag in the message", messaging},
	"web":                {"HTTP client and server instrumented with sdkhttp", webRequest},
	"in-process-link":    {"work continued by a pool of goroutines through an in-process link", inProcessLink},
	"custom-attributes":  {"custom request attributes and trace context of a request", customAttributes},
	"metrics":            {"counter, gauge and statistics metrics", metrics},
	"database-lifecycle": {"misuse of the tracer lifecycle, reported to the logging callback", databaseLifecycle},
}

var (
	sampleDB = sdk.DatabaseInfo{
		Name:            "customers",
		Vendor:          sdk.DatabaseVendorPostgreSQL,
		ChannelType:     sdk.ChannelTCPIP,
		ChannelEndpoint: "db.example.com:5432",
	}
	sampleQueue = sdk.MessagingSystemInfo{
		VendorName:      sdk.MessagingVendorRabbitMQ,
		DestinationName: "orders",
		DestinationType: sdk.DestinationQueue,
		ChannelType:     sdk.ChannelTCPIP,
		ChannelEndpoint: "mq.example.com:5672",
	}
	sampleApp = sdk.WebApplicationInfo{
		WebServerName: "sample-server",
		ApplicationID: "SampleShop",
		ContextRoot:   "/",
	}
)

var errQueryFailed = errors.New("relation \"customers\" does not exist")

// query simulates a database round trip.
func query(ctx context.Context, rows int) (int, error) {
	select {
	case <-time.After(5 * time.Millisecond):
		return rows, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func databaseSync(ctx context.Context, s sdk.SDK) error {
	t := s.TraceSQLDatabaseRequest(ctx, sampleDB, "SELECT * FROM customers")
	t.Start()
	defer t.End()

	rows, err := query(t.Context(), 42)
	if err != nil {
		t.Err(err)
		return err
	}
	t.SetRowsReturned(rows)
	t.SetRoundTripCount(1)
	return nil
}

func databaseTrace(ctx context.Context, s sdk.SDK) error {
	t := s.TraceSQLDatabaseRequest(ctx, sampleDB, "SELECT count(*) FROM customers")
	count, err := sdk.TraceValue(t, func() (int, error) {
		return query(t.Context(), 1)
	})
	if err != nil {
		return err
	}
	if count != 1 {
		return errors.Errorf("unexpected row count %d", count)
	}
	return nil
}

func databaseAsync(ctx context.Context, s sdk.SDK) error {
	first := sdk.TraceAsyncValue(s.TraceSQLDatabaseRequest(ctx, sampleDB, "SELECT * FROM orders"),
		func(ctx context.Context) (int, error) { return query(ctx, 3) })
	second := sdk.TraceAsync(s.TraceSQLDatabaseRequest(ctx, sampleDB, "UPDATE stats SET hits = hits + 1"),
		func(ctx context.Context) error {
			_, err := query(ctx, 0)
			return err
		})

	if _, err := first.WaitContext(ctx); err != nil {
		return err
	}
	_, err := second.WaitContext(ctx)
	return err
}

func databaseError(ctx context.Context, s sdk.SDK) error {
	t := s.TraceSQLDatabaseRequest(ctx, sampleDB, "SELECT * FROM customer")
	err := t.Trace(func() error {
		if _, err := query(t.Context(), 0); err != nil {
			return err
		}
		return errQueryFailed
	})
	if errors.Is(err, errQueryFailed) {
		// expected, the tracer recorded it
		return nil
	}
	return errors.Errorf("got %v, want the query error", err)
}

// databaseLifecycle breaks the lifecycle rules on purpose. The work still
// runs and every violation goes to the logging callback.
func databaseLifecycle(ctx context.Context, s sdk.SDK) error {
	t := s.TraceSQLDatabaseRequest(ctx, sampleDB, "SELECT 1")
	t.End()
	t.Start()
	t.Start()
	t.Error("first")
	t.Error("second")
	t.End()
	t.End()
	return nil
}

// remoteCallServer stands for the callee of a remote call. It continues the
// trace of the tag it receives.
func remoteCallServer(ctx context.Context, s sdk.SDK, tag string, work func(context.Context) error) error {
	t := s.TraceIncomingRemoteCall(ctx, "GetCustomer", "CustomerService", "rmi://customers.example.com/svc")
	t.SetStringTag(tag)
	return t.Trace(func() error {
		if work == nil {
			return nil
		}
		return work(t.Context())
	})
}

func remoteCall(ctx context.Context, s sdk.SDK) error {
	t := s.TraceOutgoingRemoteCall(ctx, "GetCustomer", "CustomerService",
		"rmi://customers.example.com/svc", sdk.ChannelTCPIP, "customers.example.com:1099")
	t.SetProtocolName("RMI/custom")
	return t.Trace(func() error {
		return remoteCallServer(context.Background(), s, t.StringTag(), nil)
	})
}

func remoteCallWithDatabase(ctx context.Context, s sdk.SDK) error {
	t := s.TraceOutgoingRemoteCall(ctx, "GetCustomer", "CustomerService",
		"rmi://customers.example.com/svc", sdk.ChannelTCPIP, "customers.example.com:1099")
	return t.Trace(func() error {
		return remoteCallServer(context.Background(), s, t.StringTag(), func(ctx context.Context) error {
			return databaseSync(ctx, s)
		})
	})
}

type message struct {
	id   string
	body string
	tag  []byte
}

func messaging(ctx context.Context, s sdk.SDK) error {
	queue := make(chan message, 1)

	produce := s.TraceOutgoingMessage(ctx, sampleQueue)
	err := produce.Trace(func() error {
		m := message{id: "msg-1", body: "order #1", tag: produce.ByteTag()}
		select {
		case queue <- m:
		case <-ctx.Done():
			return ctx.Err()
		}
		produce.SetVendorMessageID(m.id)
		return nil
	})
	if err != nil {
		return err
	}

	receive := s.TraceIncomingMessageReceive(ctx, sampleQueue)
	m, err := sdk.TraceValue(receive, func() (message, error) {
		select {
		case m := <-queue:
			return m, nil
		case <-ctx.Done():
			return message{}, ctx.Err()
		}
	})
	if err != nil {
		return err
	}

	process := s.TraceIncomingMessageProcess(receive.Context(), sampleQueue)
	process.SetByteTag(m.tag)
	return process.Trace(func() error {
		process.SetVendorMessageID(m.id)
		process.SetCorrelationID("order-1")
		return nil
	})
}

func webRequest(ctx context.Context, s sdk.SDK) error {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	mux := http.NewServeMux()
	sh := &shop{sdk: s}
	mux.HandleFunc("/cart", sdkhttp.HandlerFunc(s, sampleApp, sh.cart))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(lis) }()
	defer srv.Close()

	client := sdkhttp.Client(s, nil)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+lis.Addr().String()+"/cart?item=42", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "GET /cart")
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("GET /cart: %s", resp.Status)
	}
	return nil
}

type shop struct {
	sdk sdk.SDK
}

func (sh *shop) cart(w http.ResponseWriter, r *http.Request) {
	if err := databaseSync(r.Context(), sh.sdk); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "item %s is in the cart\n", r.URL.Query().Get("item"))
}

func inProcessLink(ctx context.Context, s sdk.SDK) error {
	root := s.TraceIncomingRemoteCall(ctx, "ImportCustomers", "ImportService", "batch://import")
	return root.Trace(func() error {
		link := s.CreateInProcessLink(root.Context())
		g, gctx := errgroup.WithContext(sdk.ContextWithLink(context.Background(), link))
		for i := 0; i < 4; i++ {
			i := i
			g.Go(func() error {
				link, _ := sdk.LinkFromContext(gctx)
				t := s.TraceInProcessLink(gctx, link)
				return t.Trace(func() error {
					_, err := query(t.Context(), i)
					return err
				})
			})
		}
		return g.Wait()
	})
}

func customAttributes(ctx context.Context, s sdk.SDK) error {
	t := s.TraceIncomingRemoteCall(ctx, "Checkout", "ShopService", "rmi://shop")
	return t.Trace(func() error {
		ctx := t.Context()
		s.AddCustomRequestAttributeString(ctx, "customer", "alice")
		s.AddCustomRequestAttributeInt(ctx, "items", 3)
		s.AddCustomRequestAttributeFloat(ctx, "total", 59.90)
		s.AddCustomRequestAttributeString(ctx, "coupon", "SPRING")
		s.AddCustomRequestAttributeString(ctx, "coupon", "LOYALTY")

		info := s.TraceContextInfo(ctx)
		if info.IsValid() {
			s.AddCustomRequestAttributeString(ctx, "trace", fmt.Sprintf("%s-%s", info.TraceID, info.SpanID))
		}
		return nil
	})
}

// metrics leaves its metrics open so that they are still registered when
// the command logs them.
func metrics(ctx context.Context, s sdk.SDK) error {
	requests := s.CreateIntegerCounterMetric("requests", "count", "route")
	latency := s.CreateFloatStatisticsMetric("request.latency", "ms", "route")
	queueDepth := s.CreateIntegerGaugeMetric("queue.depth", "count", "")

	for i, route := range []string{"/cart", "/cart", "/checkout"} {
		start := time.Now()
		if _, err := query(ctx, i); err != nil {
			return err
		}
		requests.IncreaseBy(1, route)
		latency.AddValue(float64(time.Since(start).Microseconds())/1000, route)
		queueDepth.SetValue(int64(3-i), "")
	}
	return nil
}
