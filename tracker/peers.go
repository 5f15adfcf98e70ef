package tracker

import (
	"github.com/coelacanth/tracker/bencode"
	"github.com/coelacanth/tracker/store"
)

// compact4 renders a single IPv4 peer as the 6-byte network-order
// address+port group used by compact-mode responses. It returns nil for a
// peer whose address is not IPv4.
func compact4(p store.PeerAddr) []byte {
	ip := p.IP.To4()
	if ip == nil {
		return nil
	}
	buf := make([]byte, 0, 6)
	buf = append(buf, ip...)
	buf = append(buf, byte(p.Port>>8), byte(p.Port&0xff))
	return buf
}

// compact6 renders a single IPv6 peer as the 18-byte address+port group
// used by the compact-v6 extension.
func compact6(p store.PeerAddr) []byte {
	ip := p.IP.To16()
	if ip == nil || p.IP.To4() != nil {
		return nil
	}
	buf := make([]byte, 0, 18)
	buf = append(buf, ip...)
	buf = append(buf, byte(p.Port>>8), byte(p.Port&0xff))
	return buf
}

// dictPeer renders a peer as a {peer id, ip, port} map for dictionary-mode
// responses. If noPeerID is set, the "peer id" key is omitted.
func dictPeer(p store.PeerAddr, noPeerID bool) bencode.Dict {
	d := bencode.Dict{
		"ip":   p.IP.String(),
		"port": int64(p.Port),
	}
	if !noPeerID {
		d["peer id"] = string(p.PeerID[:])
	}
	return d
}

// renderPeers sets the "peers" key (and, in compact mode with any IPv6
// peers present, "peers6") on dict.
func renderPeers(dict bencode.Dict, peers []store.PeerAddr, compact, noPeerID bool) {
	if compact {
		var v4, v6 []byte
		for _, p := range peers {
			if b := compact4(p); b != nil {
				v4 = append(v4, b...)
				continue
			}
			if b := compact6(p); b != nil {
				v6 = append(v6, b...)
			}
		}
		dict["peers"] = string(v4)
		if len(v6) > 0 {
			dict["peers6"] = string(v6)
		}
		return
	}

	list := make(bencode.List, 0, len(peers))
	for _, p := range peers {
		list = append(list, dictPeer(p, noPeerID))
	}
	dict["peers"] = list
}
