package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// receiptScanPrompt is shared by every model provider
const receiptScanPrompt = `You are reading a receipt attached to a French employee expense report. Read all text in the image and extract:

1. "name": the merchant and a short description, e.g. "SNCF - Paris Lyon".
2. "type": exactly one of "Transports", "Restaurants et bars", "Hôtel et logement", "Services en ligne", "IT et électronique", "Equipement et matériel", "Fournitures de bureau".
3. "date": the purchase date as YYYY-MM-DD.
4. "amount": the total paid including tax, as a number in euros.
5. "vat": the VAT (TVA) amount as a number in euros.

Return ONLY valid JSON in this exact format:
{
  "name": "Merchant - Description",
  "type": "Transports",
  "date": "YYYY-MM-DD",
  "amount": 0.00,
  "vat": 0.00
}

Use null for any field you cannot read. Do not include any text before or after the JSON and do not use markdown code blocks.`

// PNG is the content type every converted receipt ends up with
const PNG = "image/png"

// NeedsConversion reports whether a receipt of this type must be rewritten as
// PNG before a browser can display it.
func NeedsConversion(data []byte, contentType string) bool {
	mimeType := normalizeMimeType(contentType)
	return mimeType == "application/pdf" || isHEICMimeType(mimeType) || isHEICFormat(data)
}

// ToPNG renders the first page of a PDF, or decodes any supported image, as PNG.
// PNG input is returned unchanged.
func ToPNG(data []byte, contentType string) ([]byte, error) {
	mimeType := normalizeMimeType(contentType)
	switch {
	case mimeType == "application/pdf":
		out, err := pdfToPNG(data)
		if err != nil {
			return nil, fmt.Errorf("converting PDF to image: %w", err)
		}
		return out, nil
	case mimeType == PNG && !isHEICFormat(data):
		return data, nil
	default:
		out, err := imageToPNG(data, mimeType)
		if err != nil {
			return nil, fmt.Errorf("converting image to PNG: %w", err)
		}
		return out, nil
	}
}

func normalizeMimeType(contentType string) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType == "" || mimeType == "image/jpg" {
		return "image/jpeg"
	}
	return mimeType
}

// pdfToPNG renders the first page; receipts are single page
func pdfToPNG(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return encodePNG(img)
}

func imageToPNG(imageData []byte, mimeType string) ([]byte, error) {
	var (
		img image.Image
		err error
	)

	if isHEICFormat(imageData) || isHEICMimeType(mimeType) {
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}
	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICFormat looks for an ftyp box with a HEIC brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
