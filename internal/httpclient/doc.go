// Package httpclient builds the HTTP requests issued by scenario steps and the
// shared client that sends them.
//
// Use [NewRequestBuilder] once per step; [RequestBuilder.Build] is safe to call
// from many VUs at once:
//
//	builder, err := httpclient.NewRequestBuilder(cfg.BaseURL, step)
//	if err != nil {
//		return err
//	}
//	req, err := builder.Build(ctx)
//
// [NewClient] returns a client with connection reuse sized for load generation
// and an end-to-end request timeout. [ReadBody] bounds how much of a response
// is kept in memory.
package httpclient
