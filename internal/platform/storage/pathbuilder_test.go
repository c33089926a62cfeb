package storage

import "testing"

func TestBuildProductImagePath(t *testing.T) {
	path, err := BuildObjectPath(PurposeProductImage, PathParams{
		ProductID: "prod123",
		UploadID:  "upload789",
		FileName:  "front.png",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "assets/products/prod123/images/upload789/front.png"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildInvoicePathUsesInvoiceNumber(t *testing.T) {
	path, err := BuildObjectPath(PurposeInvoice, PathParams{
		OrderID:       "order123",
		InvoiceNumber: "INV-2026-001",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "assets/orders/order123/invoices/INV-2026-001.pdf"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildObjectPathRejectsInvalidSegment(t *testing.T) {
	_, err := BuildObjectPath(PurposeProductImage, PathParams{
		ProductID: "../bad",
		UploadID:  "upload",
		FileName:  "file.png",
	})
	if err == nil {
		t.Fatalf("expected error for invalid segment")
	}
}
