package automation

// CartLine is one product and quantity sent to add-to-cart.
type CartLine struct {
	Product  Product
	Quantity int
	Size     string
}

func withSession(sessionID string, payload map[string]interface{}) map[string]interface{} {
	if sessionID != "" {
		payload["session_id"] = sessionID
	}
	return payload
}

func LoginPayload(identity map[string]string) map[string]interface{} {
	payload := make(map[string]interface{}, len(identity))
	for k, v := range identity {
		payload[k] = v
	}
	return payload
}

func OTPPayload(sessionID, otp string) map[string]interface{} {
	return withSession(sessionID, map[string]interface{}{"otp": otp})
}

func SearchPayload(sessionID, query string, limit int) map[string]interface{} {
	payload := map[string]interface{}{"query": query}
	if limit > 0 {
		payload["max_items"] = limit
	}
	return withSession(sessionID, payload)
}

func CartPayload(sessionID string, lines []CartLine, paymentHint string) map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(lines))
	for _, line := range lines {
		item := map[string]interface{}{
			"product_name": line.Product.Name,
			"price":        line.Product.Price,
			"quantity":     line.Quantity,
		}
		if line.Product.URL != "" {
			item["product_url"] = line.Product.URL
		}
		if line.Size != "" {
			item["size"] = line.Size
		}
		items = append(items, item)
	}
	payload := map[string]interface{}{"items": items}
	if paymentHint != "" {
		payload["payment_method"] = paymentHint
	}
	return withSession(sessionID, payload)
}

func AddressPayload(sessionID string, address map[string]string) map[string]interface{} {
	payload := make(map[string]interface{}, len(address)+1)
	for k, v := range address {
		payload[k] = v
	}
	return withSession(sessionID, payload)
}

func PayPayload(sessionID, upiID string) map[string]interface{} {
	return withSession(sessionID, map[string]interface{}{"upi_id": upiID})
}
