//go:build ios
// +build ios

package mobile

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework Foundation
#import <Foundation/Foundation.h>
void rnsLog(const char *text) {
  NSString *nss = [NSString stringWithUTF8String:text];
  NSLog(@"rnsmesh: %@", nss);
}
*/
import "C"
import "unsafe"

// MobileLogger writes log lines to the unified log through NSLog.
type MobileLogger struct{}

func (MobileLogger) Write(p []byte) (n int, err error) {
	n = len(p)
	buf := append(append(make([]byte, 0, n+1), p...), 0)
	C.rnsLog((*C.char)(unsafe.Pointer(&buf[0])))
	return n, nil
}
