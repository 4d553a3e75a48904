package notify

var TruncateUTF8 = truncateUTF8
