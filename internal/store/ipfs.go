package store

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	shell "github.com/ipfs/go-ipfs-api"
)

// IPFSStore pins deliverable content through a local or remote IPFS API node
// and produces gateway URLs for client download links.
type IPFSStore struct {
	sh         *shell.Shell
	gatewayURL string
}

func NewIPFSStore(apiURL, gatewayURL string) *IPFSStore {
	return &IPFSStore{
		sh:         shell.NewShell(apiURL),
		gatewayURL: strings.TrimRight(gatewayURL, "/"),
	}
}

// Put pins the content and returns its CID.
func (s *IPFSStore) Put(data []byte) (string, error) {
	cid, err := s.sh.Add(bytes.NewReader(data), shell.Pin(true))
	if err != nil {
		return "", fmt.Errorf("ipfs add: %w", err)
	}
	return cid, nil
}

// Get fetches the full content for a CID.
func (s *IPFSStore) Get(cid string) ([]byte, error) {
	rc, err := s.sh.Cat(cid)
	if err != nil {
		return nil, fmt.Errorf("ipfs cat %s: %w", cid, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("ipfs read %s: %w", cid, err)
	}
	return data, nil
}

// GatewayURL returns a public HTTP URL for the CID.
func (s *IPFSStore) GatewayURL(cid string) string {
	return s.gatewayURL + "/ipfs/" + cid
}
