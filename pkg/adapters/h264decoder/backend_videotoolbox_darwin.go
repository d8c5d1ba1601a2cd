//go:build darwin && cgo

package h264decoder

/*
#cgo LDFLAGS: -framework VideoToolbox -framework CoreMedia -framework CoreFoundation -framework CoreVideo

#include <VideoToolbox/VideoToolbox.h>
#include <CoreMedia/CoreMedia.h>
#include <CoreFoundation/CoreFoundation.h>
#include <CoreVideo/CoreVideo.h>
#include <stdlib.h>
#include <string.h>

#define VT_NO_SESSION 1

typedef struct {
    VTDecompressionSessionRef session;
    CMFormatDescriptionRef formatDesc;

    // Last picture as packed NV12: Y rows of width bytes, then CbCr rows
    // of uvStride bytes.
    unsigned char *y;
    unsigned char *uv;
    size_t yCap;
    size_t uvCap;
    int width;
    int height;
    int uvStride;
    int ready;
    OSStatus callbackStatus;
} vtContext;

static int vtGrow(unsigned char **buf, size_t *cap, size_t size) {
    if (*cap >= size) return 0;
    unsigned char *p = (unsigned char*)realloc(*buf, size);
    if (p == NULL) return -1;
    *buf = p;
    *cap = size;
    return 0;
}

static void vtOutputCallback(void *refCon,
                             void *sourceFrameRefCon,
                             OSStatus status,
                             VTDecodeInfoFlags infoFlags,
                             CVImageBufferRef imageBuffer,
                             CMTime presentationTimeStamp,
                             CMTime presentationDuration) {
    vtContext *ctx = (vtContext*)refCon;
    if (status != noErr) {
        ctx->callbackStatus = status;
        return;
    }
    if (imageBuffer == NULL) {
        // Dropped by the decoder.
        return;
    }

    OSType format = CVPixelBufferGetPixelFormatType(imageBuffer);
    if (format != kCVPixelFormatType_420YpCbCr8BiPlanarVideoRange &&
        format != kCVPixelFormatType_420YpCbCr8BiPlanarFullRange) {
        ctx->callbackStatus = kVTVideoDecoderUnsupportedDataFormatErr;
        return;
    }

    CVPixelBufferLockBaseAddress(imageBuffer, kCVPixelBufferLock_ReadOnly);

    size_t width = CVPixelBufferGetWidth(imageBuffer);
    size_t height = CVPixelBufferGetHeight(imageBuffer);
    size_t cw = (width + 1) / 2;
    size_t ch = (height + 1) / 2;

    if (vtGrow(&ctx->y, &ctx->yCap, width * height) != 0 ||
        vtGrow(&ctx->uv, &ctx->uvCap, 2 * cw * ch) != 0) {
        CVPixelBufferUnlockBaseAddress(imageBuffer, kCVPixelBufferLock_ReadOnly);
        ctx->callbackStatus = kVTAllocationFailedErr;
        return;
    }

    unsigned char *yPlane = CVPixelBufferGetBaseAddressOfPlane(imageBuffer, 0);
    unsigned char *uvPlane = CVPixelBufferGetBaseAddressOfPlane(imageBuffer, 1);
    size_t yRow = CVPixelBufferGetBytesPerRowOfPlane(imageBuffer, 0);
    size_t uvRow = CVPixelBufferGetBytesPerRowOfPlane(imageBuffer, 1);

    for (size_t r = 0; r < height; r++) {
        memcpy(ctx->y + r * width, yPlane + r * yRow, width);
    }
    for (size_t r = 0; r < ch; r++) {
        memcpy(ctx->uv + r * 2 * cw, uvPlane + r * uvRow, 2 * cw);
    }

    CVPixelBufferUnlockBaseAddress(imageBuffer, kCVPixelBufferLock_ReadOnly);

    ctx->width = (int)width;
    ctx->height = (int)height;
    ctx->uvStride = (int)(2 * cw);
    ctx->ready = 1;
}

static vtContext* vtCreate(void) {
    return (vtContext*)calloc(1, sizeof(vtContext));
}

static void vtInvalidate(vtContext *ctx) {
    if (ctx->session) {
        VTDecompressionSessionInvalidate(ctx->session);
        CFRelease(ctx->session);
        ctx->session = NULL;
    }
    if (ctx->formatDesc) {
        CFRelease(ctx->formatDesc);
        ctx->formatDesc = NULL;
    }
    ctx->ready = 0;
    ctx->callbackStatus = noErr;
}

// vtConfigure replaces the session with one built from the SPS and PPS.
static OSStatus vtConfigure(vtContext *ctx, const uint8_t *sps, size_t spsSize,
                            const uint8_t *pps, size_t ppsSize) {
    vtInvalidate(ctx);

    const uint8_t *sets[2] = { sps, pps };
    size_t sizes[2] = { spsSize, ppsSize };
    OSStatus status = CMVideoFormatDescriptionCreateFromH264ParameterSets(
        kCFAllocatorDefault, 2, sets, sizes, 4, &ctx->formatDesc);
    if (status != noErr) {
        return status;
    }

    CFMutableDictionaryRef attrs = CFDictionaryCreateMutable(
        kCFAllocatorDefault, 0,
        &kCFTypeDictionaryKeyCallBacks,
        &kCFTypeDictionaryValueCallBacks);
    SInt32 format = kCVPixelFormatType_420YpCbCr8BiPlanarVideoRange;
    CFNumberRef formatNumber = CFNumberCreate(kCFAllocatorDefault, kCFNumberSInt32Type, &format);
    CFDictionarySetValue(attrs, kCVPixelBufferPixelFormatTypeKey, formatNumber);
    CFRelease(formatNumber);

    VTDecompressionOutputCallbackRecord callback;
    callback.decompressionOutputCallback = vtOutputCallback;
    callback.decompressionOutputRefCon = ctx;

    status = VTDecompressionSessionCreate(
        kCFAllocatorDefault, ctx->formatDesc, NULL, attrs, &callback, &ctx->session);
    CFRelease(attrs);
    return status;
}

// vtDecode decodes one access unit given as AVCC. The payload is copied;
// VideoToolbox frees the copy with the block buffer.
static OSStatus vtDecode(vtContext *ctx, const unsigned char *data, size_t size) {
    if (!ctx->session) {
        return VT_NO_SESSION;
    }
    ctx->ready = 0;
    ctx->callbackStatus = noErr;

    unsigned char *copy = (unsigned char*)malloc(size);
    if (copy == NULL) {
        return kVTAllocationFailedErr;
    }
    memcpy(copy, data, size);

    CMBlockBufferRef block = NULL;
    OSStatus status = CMBlockBufferCreateWithMemoryBlock(
        kCFAllocatorDefault, copy, size, kCFAllocatorDefault, NULL, 0, size, 0, &block);
    if (status != noErr) {
        free(copy);
        return status;
    }

    CMSampleBufferRef sample = NULL;
    const size_t sampleSizes[] = { size };
    status = CMSampleBufferCreateReady(
        kCFAllocatorDefault, block, ctx->formatDesc, 1, 0, NULL, 1, sampleSizes, &sample);
    CFRelease(block);
    if (status != noErr) {
        return status;
    }

    VTDecodeInfoFlags infoFlags = 0;
    status = VTDecompressionSessionDecodeFrame(ctx->session, sample, 0, NULL, &infoFlags);
    CFRelease(sample);
    if (status != noErr) {
        return status;
    }
    VTDecompressionSessionWaitForAsynchronousFrames(ctx->session);
    return ctx->callbackStatus;
}

static void vtDestroy(vtContext *ctx) {
    if (!ctx) return;
    vtInvalidate(ctx);
    free(ctx->y);
    free(ctx->uv);
    free(ctx);
}
*/
import "C"

import (
	"fmt"
	"image"
	"unsafe"
)

const platformBackend = BackendVideoToolbox

const (
	// vtNoSession matches VT_NO_SESSION.
	vtNoSession = 1
	// kVTVideoDecoderBadDataErr: the access unit could not be decoded but
	// the session is still usable.
	vtBadData = -12909
)

// videoToolboxBackend decodes with a VTDecompressionSession. Pictures are
// delivered synchronously, so flush has nothing to return.
type videoToolboxBackend struct {
	ctx *C.vtContext
}

func newPlatformBackend() backend {
	return &videoToolboxBackend{}
}

func (b *videoToolboxBackend) name() Backend { return BackendVideoToolbox }

func (b *videoToolboxBackend) init() error {
	b.ctx = C.vtCreate()
	if b.ctx == nil {
		return fmt.Errorf("%w: cannot allocate VideoToolbox context", ErrPlatformNotSupported)
	}
	return nil
}

func (b *videoToolboxBackend) configure(width, height int, paramSets []byte) error {
	if b.ctx == nil {
		return ErrNotInitialized
	}
	units := ClassifyNALUs(paramSets)
	if len(units.SPS) == 0 || len(units.PPS) == 0 {
		return nil
	}
	sps, pps := units.SPS[0], units.PPS[0]
	status := C.vtConfigure(b.ctx,
		(*C.uint8_t)(unsafe.Pointer(&sps[0])), C.size_t(len(sps)),
		(*C.uint8_t)(unsafe.Pointer(&pps[0])), C.size_t(len(pps)))
	if status != 0 {
		return fmt.Errorf("create VideoToolbox session: OSStatus %d", int32(status))
	}
	return nil
}

func (b *videoToolboxBackend) send(data []byte) error {
	if b.ctx == nil {
		return ErrNotInitialized
	}
	avcc := PictureAVCC(data)
	if len(avcc) == 0 {
		return nil
	}

	status := int32(C.vtDecode(b.ctx, (*C.uchar)(unsafe.Pointer(&avcc[0])), C.size_t(len(avcc))))
	switch status {
	case 0:
		return nil
	case vtNoSession:
		return fmt.Errorf("%w: no parameter sets received", errSkipFrame)
	case vtBadData:
		return fmt.Errorf("%w: VideoToolbox rejected the access unit", errSkipFrame)
	default:
		return fmt.Errorf("VideoToolbox decode: OSStatus %d", status)
	}
}

func (b *videoToolboxBackend) receive(pool *framePool) (*image.YCbCr, error) {
	if b.ctx == nil || b.ctx.ready == 0 {
		return nil, nil
	}
	b.ctx.ready = 0

	w, h := int(b.ctx.width), int(b.ctx.height)
	uvStride := int(b.ctx.uvStride)
	ch := (h + 1) / 2
	y := unsafe.Slice((*byte)(unsafe.Pointer(b.ctx.y)), w*h)
	uv := unsafe.Slice((*byte)(unsafe.Pointer(b.ctx.uv)), uvStride*ch)

	img := pool.get(w, h)
	if !fillYCbCrNV12(img, y, w, uv, uvStride) {
		return nil, fmt.Errorf("VideoToolbox picture %dx%d has short planes", w, h)
	}
	return img, nil
}

func (b *videoToolboxBackend) flush() ([]*image.YCbCr, error) {
	return nil, nil
}

func (b *videoToolboxBackend) reset() error {
	if b.ctx == nil {
		return ErrNotInitialized
	}
	C.vtInvalidate(b.ctx)
	return nil
}

func (b *videoToolboxBackend) close() {
	if b.ctx != nil {
		C.vtDestroy(b.ctx)
		b.ctx = nil
	}
}
