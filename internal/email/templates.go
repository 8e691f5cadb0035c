package email

import (
	"fmt"
	"strings"
)

// Line represents one reserved line in a settlement notice
type Line struct {
	SKU      string
	Name     string
	Quantity int
}

// BuildSettlementNoticeBody builds the HTML body for a settlement notice email
func BuildSettlementNoticeBody(sessionID, headline string, lines []Line) string {
	var linesHTML strings.Builder
	for _, line := range lines {
		name := line.Name
		if name == "" {
			name = line.SKU
		}
		linesHTML.WriteString(fmt.Sprintf(
			`<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee; font-family: monospace;">%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee;">%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: center;">%d</td>
			</tr>`,
			line.SKU,
			name,
			line.Quantity,
		))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: linear-gradient(135deg, #667eea 0%%, #764ba2 100%%); padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">%s</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">セッションID</p>
			<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">%s</p>
		</div>

		<h2 style="font-size: 18px; border-bottom: 2px solid #667eea; padding-bottom: 10px;">対象の在庫予約</h2>

		<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
			<thead>
				<tr style="background: #f8f9fa;">
					<th style="padding: 12px; text-align: left; font-weight: 600;">SKU</th>
					<th style="padding: 12px; text-align: left; font-weight: 600;">商品名</th>
					<th style="padding: 12px; text-align: center; font-weight: 600;">数量</th>
				</tr>
			</thead>
			<tbody>
				%s
			</tbody>
		</table>

		<hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">

		<p style="font-size: 12px; color: #999; margin-bottom: 0;">
			このメールは自動送信されています。
		</p>
	</div>
</body>
</html>`, headline, sessionID, linesHTML.String())
}
