package noderpc

import (
	"context"
	"encoding/json"
)

// GetTxsBatch fetches many transactions in one or more batched RPC calls.
// It returns a slice positionally aligned with txids, with nil for any
// entry whose individual lookup failed, and internally decomposes the
// request into chunks of at most maxBatch when len(txids) exceeds it.
func (c *Client) GetTxsBatch(ctx context.Context, txids []string, maxBatch int) ([]*TxView, error) {
	if maxBatch <= 0 {
		maxBatch = len(txids)
	}
	out := make([]*TxView, len(txids))

	for start := 0; start < len(txids); start += maxBatch {
		end := start + maxBatch
		if end > len(txids) {
			end = len(txids)
		}
		chunk := txids[start:end]

		methods := make([]string, len(chunk))
		params := make([][]interface{}, len(chunk))
		for i, txid := range chunk {
			methods[i] = "getrawtransaction"
			params[i] = []interface{}{txid, true}
		}

		results, err := c.callBatch(ctx, methods, params)
		if err != nil {
			return nil, err
		}
		for i, raw := range results {
			if raw == nil {
				continue
			}
			var w wireTx
			if err := json.Unmarshal(raw, &w); err != nil {
				log.Warnf("decode batched getrawtransaction result for %s: %v", chunk[i], err)
				continue
			}
			tx := convertTx(w)
			out[start+i] = &tx
		}
	}
	return out, nil
}
