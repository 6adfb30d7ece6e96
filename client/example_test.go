package client_test

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"

	"github.com/adamwoolhether/httpkit/client"
	"github.com/adamwoolhether/httpkit/client/optset"
	"github.com/adamwoolhether/httpkit/client/transport/transporttest"
)

func ExampleBuild() {
	c, err := client.Build(client.WithTestGuard(nil))
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	_ = c
	fmt.Println("client built")
	// Output: client built
}

func ExampleClient_Exec() {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"method":%q,"agent":%q}`, r.Method, r.UserAgent())
	}))
	defer ts.Close()

	c, err := client.Build(client.WithTestGuard(nil))
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	resp, err := c.Native(optset.UserAgent, "example/1.0").Exec(context.Background(), ts.URL)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	status, _ := resp.Status()
	fmt.Println(status, resp.Get("method"), resp.Get("agent"))
	// Output: 200 GET example/1.0
}

func ExampleClient_Remember() {
	tr := transporttest.Static(transporttest.Reply{})
	c, err := client.Build(client.WithTransport(tr), client.WithTestGuard(nil), client.WithoutDefaults())
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	c.Remember(func(c *client.Client) {
		c.BaseURL("https://api.example.com").AuthToken("secret")
	})

	_, _ = c.Header("X-Once", "1").Exec(context.Background(), "/users")
	_, _ = c.Exec(context.Background(), "/groups")

	for _, r := range tr.Requests() {
		fmt.Println(r.URL, r.Headers)
	}
	// Output:
	// https://api.example.com/users [Authorization: Bearer secret X-Once: 1]
	// https://api.example.com/groups [Authorization: Bearer secret]
}

func ExampleClient_MultiExec() {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, r.URL.Path)
	}))
	defer ts.Close()

	c, err := client.Build(client.WithTestGuard(nil))
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	got, err := c.BaseURL(ts.URL).MultiExec(context.Background(), map[string]string{
		"users":  "/v1/users",
		"groups": "/v1/groups",
	})
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	for _, key := range slices.Sorted(maps.Keys(got)) {
		fmt.Println(key, got[key].String())
	}
	// Output:
	// groups /v1/groups
	// users /v1/users
}

func ExampleClient_Download() {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "file contents")
	}))
	defer ts.Close()

	dir, err := os.MkdirTemp("", "example")
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer os.RemoveAll(dir)

	c, err := client.Build(client.WithTestGuard(nil))
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	dest := filepath.Join(dir, "file.txt")
	if _, err := c.Download(dest).Exec(context.Background(), ts.URL); err != nil {
		fmt.Println("error:", err)
		return
	}

	data, _ := os.ReadFile(dest)
	fmt.Println(string(data))
	// Output: file contents
}

func ExampleClient_SizeLimit() {
	tr := transporttest.Static(transporttest.Reply{Body: make([]byte, 8<<10)})
	c, err := client.Build(client.WithTransport(tr), client.WithTestGuard(nil))
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	resp, _ := c.SizeLimit(4).Exec(context.Background(), "https://example.com/big")

	fmt.Println(resp.Success())
	fmt.Println(resp.Err())
	// Output:
	// false
	// callback aborted (due to size limit: 4 kB)
}
