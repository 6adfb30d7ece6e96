// Package client provides a fluent HTTP request builder that executes one
// transfer or a concurrent batch and returns parsed responses.
//
// # Building a Client
//
// Use [Build] to create a [Client] with functional options:
//
//	c, err := client.Build(
//		client.WithLogger(logger),
//		client.WithEventHook(func(e client.Event) { ... }),
//	)
//
// # Making Requests
//
// Chain option setters and finish with [Client.Exec] or a verb helper.
// Options set this way apply to the next transfer only:
//
//	resp, err := c.AsJSONClient().
//		AuthToken(token).
//		Post(ctx, "https://api.example.com/v1/items", map[string]any{"name": "x"})
//
// Transport failures are not returned as errors; inspect the response:
//
//	if !resp.Success() {
//		log.Println(resp.Err())
//	}
//
// # Remembered Options
//
// Options set inside [Client.Remember] apply to every later transfer:
//
//	c.Remember(func(c *client.Client) {
//		c.BaseURL("https://api.example.com").AsJSONClient()
//	})
//
// # Batches
//
// [Client.MultiExec] runs one transfer per URL concurrently with the
// current options and returns responses under the caller's keys:
//
//	got, err := c.MultiExec(ctx, map[string]string{
//		"users":  "/v1/users",
//		"groups": "/v1/groups",
//	})
//
// # Downloading Files
//
// [Client.Download] streams a response body to disk. The file appears at
// its destination only when the transfer succeeds:
//
//	resp, err := c.Download("/tmp/file.bin",
//		filestream.WithChecksum(sha256.New(), expectedHex),
//		filestream.WithProgress(),
//	).Exec(ctx, fileURL)
package client
