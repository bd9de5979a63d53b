package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/calehh/oracle-node/app"
	"github.com/calehh/oracle-node/tx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-retryablehttp"
)

func newClient() *retryablehttp.Client {
	cli := retryablehttp.NewClient()
	cli.RetryMax = 2
	cli.Logger = nil
	return cli
}

// sendTx posts btx to the node on behalf of from. Only transport errors
// are retried; a rejected transaction is printed as returned.
func sendTx(url, from string, check bool, tp tx.OracleTxType, payload any) error {
	dat, err := tx.MarshalOracleTx(tx.NewOracleTx(tp, payload))
	if err != nil {
		return err
	}
	endpoint := strings.TrimRight(url, "/") + "/tx"
	if check {
		endpoint += "?check=true"
	}
	req, err := retryablehttp.NewRequest(http.MethodPost, endpoint, bytes.NewReader(dat))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if from != "" {
		if !common.IsHexAddress(from) {
			return fmt.Errorf("invalid sender address %q", from)
		}
		req.Header.Set(app.SenderHeader, from)
	}
	resp, err := newClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var res app.TxResponse
	if err = json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if res.Code != tx.CodeTypeOK {
		return fmt.Errorf("tx rejected code:%d codespace:%s log:%s", res.Code, res.Codespace, res.Log)
	}
	if len(res.Data) > 0 {
		return printJSON(res.Data)
	}
	fmt.Println("ok")
	return nil
}

func getJSON(url, path string) error {
	resp, err := newClient().Get(strings.TrimRight(url, "/") + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return printJSON(body)
}

func printJSON(dat []byte) error {
	var out bytes.Buffer
	if err := json.Indent(&out, dat, "", "  "); err != nil {
		return err
	}
	out.WriteByte('\n')
	_, err := out.WriteTo(os.Stdout)
	return err
}
