package mailtext

import "testing"

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "table receipt",
			in: `<html><head><style>td{color:red}</style></head><body>
<table><tr><td>Restaurant:</td><td><b>Tom &amp; Jerry&#39;s</b></td></tr>
<tr><td>Total Amount:</td><td>&#8377;440.00</td></tr></table></body></html>`,
			want: "Restaurant: Tom & Jerry's\n\nTotal Amount: ₹440.00",
		},
		{
			name: "line breaks and comments",
			in:   "Hello<br/>World<!-- tracking --><p>Bye</p>",
			want: "Hello\nWorld\nBye",
		},
		{
			name: "angle bracket inside attribute",
			in:   `<div><a title="items > 2" href="#">Order Total</a>: &#8377;490</div>`,
			want: "Order Total: ₹490",
		},
		{
			name: "unclosed tags",
			in:   `<div>Total: &#8377;120<div><b>Paid via UPI<span class="x"`,
			want: "Total: ₹120\nPaid via UPI",
		},
		{
			name: "cdata kept as text",
			in:   `<p>Order</p><![CDATA[ID: a > b]]><p>Done</p>`,
			want: "Order\nID: a > b\nDone",
		},
		{
			name: "script and title dropped",
			in:   `<title>Receipt</title><script>if (a < b) { x = "</p>" }</script><p>Paid</p>`,
			want: "Paid",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripHTML(tc.in); got != tc.want {
				t.Errorf("StripHTML:\n got %q\nwant %q", got, tc.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	in := "  Order ID:\t ORD1  \r\n\r\n\r\n\r\nTotal:   ₹1,234.50 \n"
	want := "Order ID: ORD1\n\nTotal: ₹1,234.50"
	if got := Normalize(in); got != want {
		t.Errorf("Normalize:\n got %q\nwant %q", got, want)
	}
}

func TestPlainText(t *testing.T) {
	if got := PlainText("plain <3 text"); got != "plain <3 text" {
		t.Errorf("plain text should not be stripped: %q", got)
	}
	if got := PlainText("<div>hi</div>"); got != "hi" {
		t.Errorf("html should be stripped: %q", got)
	}
}
