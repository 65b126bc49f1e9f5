package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/lazyfall/internal/config"
	"github.com/san-kum/lazyfall/internal/dynamo"
	"github.com/san-kum/lazyfall/internal/integrators"
	"github.com/san-kum/lazyfall/internal/logger"
	"github.com/san-kum/lazyfall/internal/sim"
)

type fixture struct {
	cfg    *config.Config
	clock  *sim.ManualClock
	engine *sim.Engine
	srv    *Server
	ts     *httptest.Server
	logs   *syncBuffer
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newFixture(maxID int) *fixture {
	cfg := config.DefaultConfig()
	cfg.Population.MaxID = maxID
	cfg.Server.StreamHz = 100

	clock := sim.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	pop, err := sim.NewPopulation(maxID, cfg.Spawn(), rand.New(rand.NewSource(11)), clock.Now())
	Expect(err).NotTo(HaveOccurred())

	f := &fixture{cfg: cfg, clock: clock, logs: &syncBuffer{}}
	f.engine = sim.NewEngine(pop, integrators.NewGravity(cfg.IntegratorParams()), clock)
	f.srv = New(cfg, f.engine, logger.New(logger.Config{Level: "debug", Format: "text", Output: f.logs}))
	f.ts = httptest.NewServer(f.srv.Handler())
	DeferCleanup(f.ts.Close)
	return f
}

func (f *fixture) get(path string, header http.Header) (*http.Response, []byte) {
	req, err := http.NewRequest(http.MethodGet, f.ts.URL+path, nil)
	Expect(err).NotTo(HaveOccurred())
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp, body
}

func decodePos(body []byte) []float64 {
	var pos []float64
	Expect(json.Unmarshal(body, &pos)).To(Succeed())
	return pos
}

var _ = Describe("GET /GetPos/{id}", func() {
	var f *fixture

	BeforeEach(func() {
		f = newFixture(50)
	})

	It("returns the flattened transform as 16 numbers", func() {
		resp, body := f.get("/GetPos/0", nil)

		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

		pos := decodePos(body)
		Expect(pos).To(HaveLen(16))
		Expect(pos[0]).To(Equal(1.0))
		Expect(pos[5]).To(Equal(1.0))
		Expect(pos[15]).To(Equal(1.0))
		Expect(pos[dynamo.CellX]).To(BeNumerically("<=", 0))
		Expect(pos[dynamo.CellY]).To(BeNumerically(">=", 0))
		Expect(pos[dynamo.CellZ]).To(Equal(0.0))
	})

	It("accepts the maximum id", func() {
		resp, body := f.get("/GetPos/50", nil)

		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(decodePos(body)[dynamo.CellZ]).To(BeNumerically("~", 60.0, 1e-4))
	})

	It("rejects an id past the maximum", func() {
		resp, body := f.get("/GetPos/51", nil)

		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(string(body)).To(Equal("Invalid id"))
		Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/plain"))
	})

	DescribeTable("ids that are not non-negative integers do not match",
		func(path string) {
			resp, _ := f.get(path, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		},
		Entry("negative", "/GetPos/-1"),
		Entry("word", "/GetPos/abc"),
		Entry("fraction", "/GetPos/1.5"),
		Entry("overflow", "/GetPos/99999999999"),
	)

	It("only serves GET", func() {
		resp, err := http.Post(f.ts.URL+"/GetPos/1", "application/json", nil)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusMethodNotAllowed))
	})

	It("only advances a body by time elapsed between its queries", func() {
		_, first := f.get("/GetPos/3", nil)
		_, again := f.get("/GetPos/3", nil)
		Expect(decodePos(again)).To(Equal(decodePos(first)))

		f.clock.Advance(200 * time.Millisecond)
		_, later := f.get("/GetPos/3", nil)
		Expect(decodePos(later)[dynamo.CellY]).To(BeNumerically("<", decodePos(first)[dynamo.CellY]))
	})

	It("leaves bodies that were not queried untouched", func() {
		before, err := f.engine.Population().Snapshot(4)
		Expect(err).NotTo(HaveOccurred())

		f.clock.Advance(time.Second)
		f.get("/GetPos/3", nil)

		after, err := f.engine.Population().Snapshot(4)
		Expect(err).NotTo(HaveOccurred())
		Expect(after).To(Equal(before))
	})

	It("serves concurrent requests", func() {
		f.clock.Advance(time.Second)

		var wg sync.WaitGroup
		codes := make([]int, 64)
		for i := range codes {
			wg.Add(1)
			go func(i int) {
				defer GinkgoRecover()
				defer wg.Done()
				resp, err := http.Get(f.ts.URL + "/GetPos/" + []string{"1", "2", "3", "4"}[i%4])
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				codes[i] = resp.StatusCode
			}(i)
		}
		wg.Wait()

		Expect(codes).To(HaveEach(http.StatusOK))
	})

	It("writes an access log line", func() {
		f.get("/GetPos/7", nil)

		Eventually(f.logs.String).Should(And(
			ContainSubstring("path=/GetPos/7"),
			ContainSubstring("status=200"),
		))
	})
})

var _ = Describe("cross-origin policy", func() {
	var f *fixture

	BeforeEach(func() {
		f = newFixture(5)
	})

	It("allows the configured origin", func() {
		resp, _ := f.get("/GetPos/1", http.Header{"Origin": {"http://127.0.0.1:8080"}})

		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("http://127.0.0.1:8080"))
	})

	It("does not vouch for other origins", func() {
		resp, _ := f.get("/GetPos/1", http.Header{"Origin": {"http://evil.example"}})

		Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(BeEmpty())
	})

	It("answers preflight requests for the allowed headers", func() {
		req, err := http.NewRequest(http.MethodOptions, f.ts.URL+"/GetPos/1", nil)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Origin", "http://127.0.0.1:8080")
		req.Header.Set("Access-Control-Request-Method", "GET")
		// browsers send the requested header names lowercased
		req.Header.Set("Access-Control-Request-Headers", "authorization")

		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()

		Expect(resp.StatusCode).To(BeNumerically("<", 300))
		Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("http://127.0.0.1:8080"))
		Expect(strings.ToUpper(resp.Header.Get("Access-Control-Allow-Methods"))).To(ContainSubstring("GET"))
		Expect(strings.ToLower(resp.Header.Get("Access-Control-Allow-Headers"))).To(ContainSubstring("authorization"))
	})

	It("refuses preflight requests for headers it does not allow", func() {
		req, err := http.NewRequest(http.MethodOptions, f.ts.URL+"/GetPos/1", nil)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Origin", "http://127.0.0.1:8080")
		req.Header.Set("Access-Control-Request-Method", "GET")
		req.Header.Set("Access-Control-Request-Headers", "x-unknown")

		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()

		Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(BeEmpty())
	})
})

var _ = Describe("GET /StreamPos/{id}", func() {
	var f *fixture

	BeforeEach(func() {
		f = newFixture(5)
	})

	wsURL := func(path string) string {
		return "ws" + strings.TrimPrefix(f.ts.URL, "http") + path
	}

	It("pushes positions until the client leaves", func() {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL("/StreamPos/2"), nil)
		Expect(err).NotTo(HaveOccurred())
		defer conn.Close()

		for i := 0; i < 3; i++ {
			var pos [16]float32
			Expect(conn.SetReadDeadline(time.Now().Add(2 * time.Second))).To(Succeed())
			Expect(conn.ReadJSON(&pos)).To(Succeed())
			Expect(pos[dynamo.CellZ]).To(BeNumerically("~", 2.4, 1e-5))
		}
	})

	It("moves the body only through its pushes", func() {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL("/StreamPos/1"), nil)
		Expect(err).NotTo(HaveOccurred())

		var first [16]float32
		Expect(conn.ReadJSON(&first)).To(Succeed())
		f.clock.Advance(500 * time.Millisecond)

		Eventually(func() float32 {
			var pos [16]float32
			Expect(conn.ReadJSON(&pos)).To(Succeed())
			return pos[dynamo.CellY]
		}).Should(BeNumerically("<", first[dynamo.CellY]))
		conn.Close()
	})

	It("validates the id before upgrading", func() {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL("/StreamPos/6"), nil)
		Expect(err).To(HaveOccurred())
		Expect(resp).NotTo(BeNil())
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("refuses foreign origins", func() {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL("/StreamPos/1"), http.Header{"Origin": {"http://evil.example"}})
		Expect(err).To(HaveOccurred())
		Expect(resp).NotTo(BeNil())
		Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
	})
})

var _ = Describe("Serve", func() {
	It("stops cleanly when the context is canceled", func() {
		f := newFixture(2)
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- f.srv.Serve(ctx, ln) }()

		Eventually(func() error {
			resp, err := http.Get("http://" + ln.Addr().String() + "/GetPos/1")
			if err == nil {
				resp.Body.Close()
			}
			return err
		}).Should(Succeed())

		cancel()
		Eventually(done, 5*time.Second).Should(Receive(BeNil()))
	})

	It("closes open streams on shutdown", func() {
		f := newFixture(2)
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- f.srv.Serve(ctx, ln) }()

		var conn *websocket.Conn
		Eventually(func() error {
			var err error
			conn, _, err = websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/StreamPos/0", nil)
			return err
		}).Should(Succeed())
		defer conn.Close()

		cancel()
		Eventually(done, 5*time.Second).Should(Receive(BeNil()))

		Expect(conn.SetReadDeadline(time.Now().Add(5 * time.Second))).To(Succeed())
		Eventually(func() error {
			var pos [16]float32
			return conn.ReadJSON(&pos)
		}, 5*time.Second).Should(HaveOccurred())
	})
})
