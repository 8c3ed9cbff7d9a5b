// Copyright 2014 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
)

var statusAPIFlag = &cli.StringFlag{
	Name:  "rpc",
	Usage: "RPC gateway address to query",
	Value: "http://127.0.0.1:6001",
}

var statusCommand = &cli.Command{
	Name:   "status",
	Usage:  "print a running node's height, mempool size and peer count",
	Flags:  []cli.Flag{statusAPIFlag},
	Action: runStatus,
}

func runStatus(c *cli.Context) error {
	result, err := callRPC(c.String(statusAPIFlag.Name), "status", nil)
	if err != nil {
		return fmt.Errorf("vltnode: status query failed: %w", err)
	}
	fields, ok := result.(map[string]interface{})
	if !ok {
		return fmt.Errorf("vltnode: unexpected status response shape")
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Field", "Value"})
	for _, key := range []string{"height", "pending_count", "mining", "peers"} {
		if v, ok := fields[key]; ok {
			table.Append([]string{key, fmt.Sprintf("%v", v)})
		}
	}
	table.Render()
	return nil
}

// callRPC posts a single command/params envelope to a running node's RPC
// gateway and returns its decoded result field.
func callRPC(apiAddr, command string, params interface{}) (interface{}, error) {
	paramsRaw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(map[string]json.RawMessage{
		"command": json.RawMessage(`"` + command + `"`),
		"params":  paramsRaw,
	})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(apiAddr+"/rpc", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		OK     bool        `json:"ok"`
		Result interface{} `json:"result"`
		Error  string      `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, fmt.Errorf("rpc: %s", out.Error)
	}
	return out.Result, nil
}
