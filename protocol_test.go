package main

import "testing"

func TestInputPacketRoundTrip(t *testing.T) {
	in := InputPacket{Tick: 123456, PlayerID: 3, Direction: uint8(DirLeft)}
	buf := EncodeInputPacket(in)
	if len(buf) != inputPacketLen || buf[0] != pktInput {
		t.Fatalf("encoded %d bytes tag %#x", len(buf), buf[0])
	}
	out, ok := DecodeInputPacket(buf)
	if !ok || out != in {
		t.Fatalf("decoded %+v ok=%v, want %+v", out, ok, in)
	}
}

func TestChecksumPacketRoundTrip(t *testing.T) {
	in := ChecksumPacket{Tick: 7, Checksum: 0xDEADBEEFCAFE0042}
	out, ok := DecodeChecksumPacket(EncodeChecksumPacket(in))
	if !ok || out != in {
		t.Fatalf("decoded %+v ok=%v, want %+v", out, ok, in)
	}
}

func TestDecodeRejectsMalformedPackets(t *testing.T) {
	if _, ok := DecodeInputPacket(nil); ok {
		t.Error("empty input packet accepted")
	}
	if _, ok := DecodeInputPacket([]byte{pktInput, 0, 0}); ok {
		t.Error("short input packet accepted")
	}
	if _, ok := DecodeInputPacket(EncodeChecksumPacket(ChecksumPacket{})[:inputPacketLen]); ok {
		t.Error("wrong tag accepted as input packet")
	}
	if _, ok := DecodeChecksumPacket([]byte{pktChecksum}); ok {
		t.Error("short checksum packet accepted")
	}
}
